package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bountypool-backend/storage/ledger"
)

// PGKeyStore persists operator key hashes in Postgres.
type PGKeyStore struct {
	pool *pgxpool.Pool
}

// NewPGKeyStore applies the shared migrations and connects. The key table
// lives alongside the ledger schema.
func NewPGKeyStore(ctx context.Context, dsn string) (*PGKeyStore, error) {
	if err := ledger.RunPostgresMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PGKeyStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PGKeyStore) Close() { s.pool.Close() }

// Validate implements KeyValidator.
func (s *PGKeyStore) Validate(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Get returns the record stored for key.
func (s *PGKeyStore) Get(ctx context.Context, key string) (OperatorKey, bool) {
	if key == "" {
		return OperatorKey{}, false
	}
	var rec OperatorKey
	err := s.pool.QueryRow(ctx,
		"SELECT label, source, created_at FROM bounty_operator_keys WHERE key_hash=$1",
		hashKey(key),
	).Scan(&rec.Label, &rec.Source, &rec.CreatedAt)
	if err != nil {
		return OperatorKey{}, false
	}
	return rec, true
}

// Issue implements KeyIssuer.
func (s *PGKeyStore) Issue(ctx context.Context, label, source string) (OperatorKey, error) {
	key, err := generateKey()
	if err != nil {
		return OperatorKey{}, err
	}
	rec := OperatorKey{Key: key, Label: label, Source: source, CreatedAt: time.Now()}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO bounty_operator_keys (key_hash, label, source, created_at) VALUES ($1,$2,$3,$4)",
		hashKey(key), rec.Label, rec.Source, rec.CreatedAt)
	if err != nil {
		return OperatorKey{}, err
	}
	return rec, nil
}

// Revoke implements KeyIssuer.
func (s *PGKeyStore) Revoke(ctx context.Context, key string) error {
	var hash string
	err := s.pool.QueryRow(ctx,
		"DELETE FROM bounty_operator_keys WHERE key_hash=$1 RETURNING key_hash", hashKey(key),
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrKeyNotFound
	}
	return err
}

// Seed inserts a provided key if not empty. An already stored key is kept.
func (s *PGKeyStore) Seed(ctx context.Context, key, label, source string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO bounty_operator_keys (key_hash, label, source, created_at) VALUES ($1,$2,$3,$4) ON CONFLICT DO NOTHING",
		hashKey(key), label, source, time.Now())
	if err != nil {
		return fmt.Errorf("seed operator key: %w", err)
	}
	return nil
}
