package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bountypool-backend/core/bounty"
)

// PGStore persists slots and balances in Postgres. Each invocation is one
// transaction; slot rows are locked with FOR UPDATE when loaded.
type PGStore struct {
	pool  *pgxpool.Pool
	clock bounty.Clock
}

// NewPGStore connects, applies migrations, and returns the store.
func NewPGStore(ctx context.Context, dsn string, clock bounty.Clock) (*PGStore, error) {
	if err := RunPostgresMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &PGStore{pool: pool, clock: clock}, nil
}

// Close shuts down the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Invoke runs fn inside a transaction and commits only if fn succeeds.
func (s *PGStore) Invoke(ctx context.Context, fn func(bounty.Env) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin invocation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx, clock: s.clock}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invocation: %w", err)
	}
	return nil
}

// Slot reads a committed slot.
func (s *PGStore) Slot(ctx context.Context, handle bounty.Identity) (bounty.Slot, error) {
	var owner, data []byte
	err := s.pool.QueryRow(ctx, `SELECT owner, data FROM bounty_slots WHERE handle = $1`, handle[:]).Scan(&owner, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return bounty.Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	if err != nil {
		return bounty.Slot{}, err
	}
	return bounty.Slot{Owner: identityFrom(owner), Data: data}, nil
}

// Balance reads a committed balance; unknown accounts hold zero.
func (s *PGStore) Balance(ctx context.Context, account bounty.Identity) (uint64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM bounty_balances WHERE account = $1`, account[:]).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

// Credit adds amount to account.
func (s *PGStore) Credit(ctx context.Context, account bounty.Identity, amount uint64) error {
	v, err := toSQLAmount(amount)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO bounty_balances (account, balance) VALUES ($1, $2)
ON CONFLICT (account) DO UPDATE SET balance = bounty_balances.balance + EXCLUDED.balance
`, account[:], v)
	return err
}

type pgTx struct {
	tx    pgx.Tx
	clock bounty.Clock
}

func (t *pgTx) Records() bounty.RecordStore       { return t }
func (t *pgTx) Transfers() bounty.TransferGateway { return t }
func (t *pgTx) Clock() bounty.Clock               { return t.clock }

func (t *pgTx) Allocate(ctx context.Context, handle, payer, owner bounty.Identity) error {
	tag, err := t.tx.Exec(ctx, `
INSERT INTO bounty_slots (handle, owner, payer) VALUES ($1, $2, $3)
ON CONFLICT (handle) DO NOTHING
`, handle[:], owner[:], payer[:])
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSlotInUse, handle)
	}
	return nil
}

func (t *pgTx) Load(ctx context.Context, handle bounty.Identity) (bounty.Slot, error) {
	var owner, data []byte
	err := t.tx.QueryRow(ctx, `SELECT owner, data FROM bounty_slots WHERE handle = $1 FOR UPDATE`, handle[:]).Scan(&owner, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return bounty.Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	if err != nil {
		return bounty.Slot{}, err
	}
	return bounty.Slot{Owner: identityFrom(owner), Data: data}, nil
}

func (t *pgTx) Save(ctx context.Context, handle bounty.Identity, data []byte) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bounty_slots SET data = $2, updated_at = now() WHERE handle = $1`, handle[:], data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	return nil
}

func (t *pgTx) Transfer(ctx context.Context, from bounty.AccountMeta, to bounty.Identity, amount uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrUnsignedDebit, from.Key)
	}
	v, err := toSQLAmount(amount)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE bounty_balances SET balance = balance - $2
WHERE account = $1 AND balance >= $2
`, from.Key[:], v)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 && v > 0 {
		return fmt.Errorf("%w: %s needs %d", ErrInsufficientFunds, from.Key, amount)
	}
	if _, err := t.tx.Exec(ctx, `
INSERT INTO bounty_balances (account, balance) VALUES ($1, $2)
ON CONFLICT (account) DO UPDATE SET balance = bounty_balances.balance + EXCLUDED.balance
`, to[:], v); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO bounty_transfers (from_account, to_account, amount) VALUES ($1, $2, $3)`,
		from.Key[:], to[:], v)
	return err
}
