package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"bountypool-backend/core/bounty"
)

// SQLiteStore is a single-node ledger in a SQLite file. Transactions take
// the write lock up front (_txlock=immediate) so invocations serialize.
type SQLiteStore struct {
	db    *sql.DB
	clock bounty.Clock
}

// NewSQLiteStore opens path (or ":memory:"), applies migrations, and returns the store.
func NewSQLiteStore(ctx context.Context, path string, clock bounty.Clock) (*SQLiteStore, error) {
	dsn := sqliteDSN(path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db, "sqlite3", "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Invoke runs fn inside a transaction and commits only if fn succeeds.
func (s *SQLiteStore) Invoke(ctx context.Context, fn func(bounty.Env) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invocation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx, clock: s.clock}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invocation: %w", err)
	}
	return nil
}

// Slot reads a committed slot.
func (s *SQLiteStore) Slot(ctx context.Context, handle bounty.Identity) (bounty.Slot, error) {
	return loadSQLiteSlot(ctx, s.db, handle)
}

// Balance reads a committed balance; unknown accounts hold zero.
func (s *SQLiteStore) Balance(ctx context.Context, account bounty.Identity) (uint64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM bounty_balances WHERE account = ?`, account[:]).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

// Credit adds amount to account.
func (s *SQLiteStore) Credit(ctx context.Context, account bounty.Identity, amount uint64) error {
	v, err := toSQLAmount(amount)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, creditSQLite, account[:], v)
	return err
}

const creditSQLite = `
INSERT INTO bounty_balances (account, balance) VALUES (?, ?)
ON CONFLICT (account) DO UPDATE SET balance = bounty_balances.balance + excluded.balance
`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadSQLiteSlot(ctx context.Context, q queryRower, handle bounty.Identity) (bounty.Slot, error) {
	var owner, data []byte
	err := q.QueryRowContext(ctx, `SELECT owner, data FROM bounty_slots WHERE handle = ?`, handle[:]).Scan(&owner, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return bounty.Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	if err != nil {
		return bounty.Slot{}, err
	}
	return bounty.Slot{Owner: identityFrom(owner), Data: data}, nil
}

type sqliteTx struct {
	tx    *sql.Tx
	clock bounty.Clock
}

func (t *sqliteTx) Records() bounty.RecordStore       { return t }
func (t *sqliteTx) Transfers() bounty.TransferGateway { return t }
func (t *sqliteTx) Clock() bounty.Clock               { return t.clock }

func (t *sqliteTx) Allocate(ctx context.Context, handle, payer, owner bounty.Identity) error {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO bounty_slots (handle, owner, payer) VALUES (?, ?, ?)
ON CONFLICT (handle) DO NOTHING
`, handle[:], owner[:], payer[:])
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSlotInUse, handle)
	}
	return nil
}

func (t *sqliteTx) Load(ctx context.Context, handle bounty.Identity) (bounty.Slot, error) {
	return loadSQLiteSlot(ctx, t.tx, handle)
}

func (t *sqliteTx) Save(ctx context.Context, handle bounty.Identity, data []byte) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bounty_slots SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE handle = ?`, data, handle[:])
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	return nil
}

func (t *sqliteTx) Transfer(ctx context.Context, from bounty.AccountMeta, to bounty.Identity, amount uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrUnsignedDebit, from.Key)
	}
	v, err := toSQLAmount(amount)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE bounty_balances SET balance = balance - ?
WHERE account = ? AND balance >= ?
`, v, from.Key[:], v)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 && v > 0 {
		return fmt.Errorf("%w: %s needs %d", ErrInsufficientFunds, from.Key, amount)
	}
	if _, err := t.tx.ExecContext(ctx, creditSQLite, to[:], v); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO bounty_transfers (from_account, to_account, amount) VALUES (?, ?, ?)`,
		from.Key[:], to[:], v)
	return err
}
