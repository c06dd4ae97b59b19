package container

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"bountypool-backend/config"
	"bountypool-backend/core/bounty"
	"bountypool-backend/handlers"
	"bountypool-backend/services"
	auth "bountypool-backend/storage/auth"
	"bountypool-backend/storage/ledger"
)

// Container holds all application dependencies
type Container struct {
	Config  config.Config
	Ledger  ledger.Ledger
	Metrics *services.Metrics
	Events  *services.EventBus
	Service *services.BountyService

	// Keys is nil when no operator key is configured.
	Keys   auth.KeyValidator
	Issuer auth.KeyIssuer

	closers []func()
}

// NewContainer opens the ledger selected by cfg and wires the service
// around it. reg receives the service metrics; nil leaves them unregistered.
func NewContainer(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*Container, error) {
	programID, err := cfg.Program()
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg}
	base, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.StoreDriver, err)
	}
	c.Ledger = base
	if size := cfg.CacheSize(); size > 0 {
		cache, err := ledger.NewRecordCache(size, cfg.CacheTTL)
		if err != nil {
			base.Close()
			return nil, err
		}
		c.Ledger = ledger.WithCache(base, cache)
	}
	c.closers = append(c.closers, c.Ledger.Close)

	c.Events = services.NewEventBus(cfg.EventBuffer)
	if cfg.NATSURL != "" {
		sink, err := services.NewNATSSink(cfg.NATSURL, cfg.NATSPrefix)
		if err != nil {
			// Events are advisory; run without the NATS fan-out.
			log.Printf("events: nats disabled: %v", err)
		} else {
			c.Events.RegisterSink(sink.Publish)
			c.closers = append(c.closers, sink.Close)
			log.Printf("events: publishing to %s on %s.*", cfg.NATSURL, cfg.NATSPrefix)
		}
	}

	c.Metrics = services.NewMetrics(reg)
	opts := []services.Option{
		services.WithMetrics(c.Metrics),
		services.WithEvents(c.Events),
		services.WithFaucet(cfg.Faucet),
	}
	if cfg.ReplayWindow > 0 {
		opts = append(opts, services.WithReplayGuard(auth.NewReplayGuard(cfg.ReplayWindow)))
	}
	c.Service = services.NewBountyService(c.Ledger, bounty.NewProcessor(programID, cfg.RuleSet()), opts...)

	if err := c.openKeys(ctx); err != nil {
		c.Close()
		return nil, err
	}

	log.Printf("bounty: program %s, rules %s, store %s", programID, cfg.Rules, cfg.StoreDriver)
	return c, nil
}

func openLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return ledger.NewPGStore(ctx, cfg.PGDSN, ledger.SystemClock{})
	case "sqlite":
		return ledger.NewSQLiteStore(ctx, cfg.SQLitePath, ledger.SystemClock{})
	case "memory", "":
		return ledger.NewMemoryStore(ledger.SystemClock{}), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openKeys seeds the configured operator key. Postgres deployments keep
// issued keys across restarts.
func (c *Container) openKeys(ctx context.Context) error {
	if c.Config.APIKey == "" {
		return nil
	}
	if c.Config.StoreDriver == "postgres" {
		keys, err := auth.NewPGKeyStore(ctx, c.Config.PGDSN)
		if err != nil {
			return fmt.Errorf("open key store: %w", err)
		}
		if err := keys.Seed(ctx, c.Config.APIKey, "operator", "config"); err != nil {
			keys.Close()
			return err
		}
		c.closers = append(c.closers, keys.Close)
		c.Keys, c.Issuer = keys, keys
		return nil
	}
	keys := auth.NewMemoryKeyStore()
	keys.Seed(c.Config.APIKey, "operator", "config")
	c.Keys, c.Issuer = keys, keys
	return nil
}

// Router builds the HTTP handler. gatherer backs /metrics.
func (c *Container) Router(gatherer prometheus.Gatherer, rateLimit int) http.Handler {
	return handlers.NewRouter(c.Service, handlers.RouterConfig{
		Keys:      c.Keys,
		Issuer:    c.Issuer,
		Gatherer:  gatherer,
		RateLimit: rateLimit,
	})
}

// Close releases everything NewContainer acquired, in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
