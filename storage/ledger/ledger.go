// Package ledger is the substrate the bounty processor runs on: slot-addressed
// record storage, account balances, and a clock, with atomic invocations.
package ledger

import (
	"context"
	"math"

	"bountypool-backend/core/bounty"
)

var (
	ErrSlotNotFound      = bounty.Err("slot not found")
	ErrSlotInUse         = bounty.Err("slot already allocated")
	ErrInsufficientFunds = bounty.Err("insufficient funds")
	ErrUnsignedDebit     = bounty.Err("debited account did not sign")
	ErrBalanceOverflow   = bounty.Err("balance overflow")
)

// Ledger runs invocations atomically and exposes read-only views for queries.
type Ledger interface {
	// Invoke runs fn with an Env whose effects are committed only if fn
	// returns nil. Invocations are serialized against the slots they touch.
	Invoke(ctx context.Context, fn func(bounty.Env) error) error
	Slot(ctx context.Context, handle bounty.Identity) (bounty.Slot, error)
	Balance(ctx context.Context, account bounty.Identity) (uint64, error)
	// Credit mints funds outside any invocation (faucet and fixtures).
	Credit(ctx context.Context, account bounty.Identity, amount uint64) error
	Close()
}

// SQL backends store amounts as BIGINT.
func toSQLAmount(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, ErrBalanceOverflow
	}
	return int64(amount), nil
}

func identityFrom(b []byte) bounty.Identity {
	var id bounty.Identity
	copy(id[:], b)
	return id
}
