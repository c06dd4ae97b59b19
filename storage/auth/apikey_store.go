package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrKeyNotFound is returned when revoking or looking up an unknown key.
var ErrKeyNotFound = errors.New("api key not found")

// OperatorKey is an issued API key that may call write endpoints.
type OperatorKey struct {
	Key       string    `json:"key,omitempty"`
	Label     string    `json:"label,omitempty"`
	Source    string    `json:"source,omitempty"` // e.g. "seed", "config", "issued"
	CreatedAt time.Time `json:"created_at"`
}

// KeyValidator is the minimal interface required by the auth middleware.
type KeyValidator interface {
	Validate(ctx context.Context, key string) bool
	Get(ctx context.Context, key string) (OperatorKey, bool)
}

// KeyIssuer creates and revokes keys.
type KeyIssuer interface {
	Issue(ctx context.Context, label, source string) (OperatorKey, error)
	Revoke(ctx context.Context, key string) error
}

// MemoryKeyStore keeps keys in memory, indexed by their hash.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]OperatorKey
}

// NewMemoryKeyStore constructs an empty store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]OperatorKey)}
}

// Seed adds a pre-existing key (e.g., from env).
func (s *MemoryKeyStore) Seed(key, label, source string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[hashKey(key)] = OperatorKey{Label: label, Source: source, CreatedAt: time.Now()}
}

// Validate returns true if the key exists.
func (s *MemoryKeyStore) Validate(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Get returns the stored record for a key. The secret itself is not kept.
func (s *MemoryKeyStore) Get(_ context.Context, key string) (OperatorKey, bool) {
	if key == "" {
		return OperatorKey{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[hashKey(key)]
	return rec, ok
}

// Issue creates and stores a new key. The returned record is the only
// place the plaintext key appears.
func (s *MemoryKeyStore) Issue(_ context.Context, label, source string) (OperatorKey, error) {
	key, err := generateKey()
	if err != nil {
		return OperatorKey{}, err
	}
	rec := OperatorKey{Label: label, Source: source, CreatedAt: time.Now()}
	s.mu.Lock()
	s.keys[hashKey(key)] = rec
	s.mu.Unlock()
	rec.Key = key
	return rec, nil
}

// Revoke removes a key.
func (s *MemoryKeyStore) Revoke(_ context.Context, key string) error {
	h := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[h]; !ok {
		return ErrKeyNotFound
	}
	delete(s.keys, h)
	return nil
}

// Keys are 256-bit random values, so an unsalted digest is enough to
// avoid storing them in the clear.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func generateKey() (string, error) {
	b := make([]byte, 32) // 256-bit key
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
