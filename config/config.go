// Package config loads daemon settings from BOUNTY_* environment variables,
// optionally layered over a YAML file named by BOUNTY_CONFIG.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bountypool-backend/core/bounty"
)

// Config holds runtime settings for bountyd and the MCP server.
type Config struct {
	Port         string        `yaml:"port"`
	StoreDriver  string        `yaml:"store_driver"` // memory | sqlite | postgres
	PGDSN        string        `yaml:"pg_dsn"`
	SQLitePath   string        `yaml:"sqlite_path"`
	APIKey       string        `yaml:"api_key"`
	NATSURL      string        `yaml:"nats_url"`
	NATSPrefix   string        `yaml:"nats_prefix"`
	CacheBytes   *int64        `yaml:"cache_bytes"` // unset: see CacheSize
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	ProgramID    string        `yaml:"program_id"`
	ProgramSeed  string        `yaml:"program_seed"`
	Rules        string        `yaml:"rules"` // strict | legacy
	Faucet       bool          `yaml:"enable_faucet"`
	ReplayWindow time.Duration `yaml:"replay_window"`
	EventBuffer  int           `yaml:"event_buffer"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:        "3003",
		StoreDriver: "memory",
		SQLitePath:  "bountypool.db",
		NATSPrefix:  "bounty.events",
		CacheTTL:    5 * time.Minute,
		ProgramSeed: "bountypool",
		Rules:       "strict",
		EventBuffer: 200,
	}
}

// Load applies the YAML overlay (if BOUNTY_CONFIG is set) and then env.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("BOUNTY_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("BOUNTY_PORT", &c.Port)
	str("BOUNTY_STORE_DRIVER", &c.StoreDriver)
	str("BOUNTY_PG_DSN", &c.PGDSN)
	str("BOUNTY_SQLITE_PATH", &c.SQLitePath)
	str("BOUNTY_API_KEY", &c.APIKey)
	str("BOUNTY_NATS_URL", &c.NATSURL)
	str("BOUNTY_NATS_PREFIX", &c.NATSPrefix)
	str("BOUNTY_PROGRAM_ID", &c.ProgramID)
	str("BOUNTY_PROGRAM_SEED", &c.ProgramSeed)
	str("BOUNTY_RULES", &c.Rules)

	if raw := getenv("BOUNTY_CACHE_BYTES"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("BOUNTY_CACHE_BYTES: %w", err)
		}
		c.CacheBytes = &v
	}
	if raw := getenv("BOUNTY_EVENT_BUFFER"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("BOUNTY_EVENT_BUFFER: %w", err)
		}
		c.EventBuffer = v
	}
	for name, dst := range map[string]*time.Duration{
		"BOUNTY_CACHE_TTL":     &c.CacheTTL,
		"BOUNTY_REPLAY_WINDOW": &c.ReplayWindow,
	} {
		if raw := getenv(name); raw != "" {
			v, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = v
		}
	}
	if raw := getenv("BOUNTY_ENABLE_FAUCET"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("BOUNTY_ENABLE_FAUCET: %w", err)
		}
		c.Faucet = v
	}
	return nil
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PGDSN == "" {
			return fmt.Errorf("store driver postgres requires BOUNTY_PG_DSN")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if _, err := bounty.RulesByName(c.Rules); err != nil {
		return err
	}
	if _, err := c.Program(); err != nil {
		return err
	}
	return nil
}

// Program returns the configured program identity. Without an explicit
// id it is derived from the seed so every node using the same seed agrees.
func (c Config) Program() (bounty.Identity, error) {
	if c.ProgramID != "" {
		id, err := bounty.ParseIdentity(c.ProgramID)
		if err != nil {
			return bounty.Identity{}, fmt.Errorf("program id: %w", err)
		}
		return id, nil
	}
	return sha256.Sum256([]byte("bountypool-program:" + c.ProgramSeed)), nil
}

// DefaultCacheBytes is the read cache size for stores owned by one process.
const DefaultCacheBytes = 32 << 20

// CacheSize returns the record cache size in bytes, 0 meaning disabled.
// Postgres may be shared by several daemons whose commits never reach this
// process's cache, so it runs uncached unless a size is set explicitly.
func (c Config) CacheSize() int64 {
	if c.CacheBytes != nil {
		return max(*c.CacheBytes, 0)
	}
	if c.StoreDriver == "postgres" {
		return 0
	}
	return DefaultCacheBytes
}

// RuleSet resolves the configured rules mode.
func (c Config) RuleSet() bounty.Rules {
	r, err := bounty.RulesByName(c.Rules)
	if err != nil {
		return bounty.StrictRules()
	}
	return r
}
