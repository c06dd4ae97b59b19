package ledger

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"bountypool-backend/core/bounty"
)

// MemoryStore holds slots and balances in memory. A single mutex
// serializes invocations; each one writes to a staging overlay that is
// merged only when the invocation succeeds.
type MemoryStore struct {
	mu       sync.Mutex
	slots    map[bounty.Identity]bounty.Slot
	balances map[bounty.Identity]uint64
	clock    bounty.Clock
}

// NewMemoryStore returns an empty ledger reading time from clock.
func NewMemoryStore(clock bounty.Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryStore{
		slots:    make(map[bounty.Identity]bounty.Slot),
		balances: make(map[bounty.Identity]uint64),
		clock:    clock,
	}
}

// Invoke runs fn against a staging overlay and merges it on success.
func (s *MemoryStore) Invoke(ctx context.Context, fn func(bounty.Env) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		base:     s,
		slots:    make(map[bounty.Identity]bounty.Slot),
		balances: make(map[bounty.Identity]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range tx.slots {
		s.slots[k] = v
	}
	for k, v := range tx.balances {
		s.balances[k] = v
	}
	return nil
}

// Slot returns a copy of a committed slot.
func (s *MemoryStore) Slot(_ context.Context, handle bounty.Identity) (bounty.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[handle]
	if !ok {
		return bounty.Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	return copySlot(slot), nil
}

// Balance returns the committed balance of account.
func (s *MemoryStore) Balance(_ context.Context, account bounty.Identity) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account], nil
}

// Credit adds amount to account.
func (s *MemoryStore) Credit(_ context.Context, account bounty.Identity, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, carry := bits.Add64(s.balances[account], amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	s.balances[account] = sum
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() {}

func copySlot(slot bounty.Slot) bounty.Slot {
	return bounty.Slot{Owner: slot.Owner, Data: append([]byte(nil), slot.Data...)}
}

// memTx is the staging overlay of one invocation. Reads fall through to
// the committed maps; writes stay local until Invoke merges them.
type memTx struct {
	base     *MemoryStore
	slots    map[bounty.Identity]bounty.Slot
	balances map[bounty.Identity]uint64
}

func (tx *memTx) Records() bounty.RecordStore       { return tx }
func (tx *memTx) Transfers() bounty.TransferGateway { return tx }
func (tx *memTx) Clock() bounty.Clock               { return tx.base.clock }

func (tx *memTx) lookup(handle bounty.Identity) (bounty.Slot, bool) {
	if slot, ok := tx.slots[handle]; ok {
		return slot, true
	}
	slot, ok := tx.base.slots[handle]
	return slot, ok
}

func (tx *memTx) Allocate(_ context.Context, handle, payer, owner bounty.Identity) error {
	if _, ok := tx.lookup(handle); ok {
		return fmt.Errorf("%w: %s", ErrSlotInUse, handle)
	}
	tx.slots[handle] = bounty.Slot{Owner: owner}
	return nil
}

func (tx *memTx) Load(_ context.Context, handle bounty.Identity) (bounty.Slot, error) {
	slot, ok := tx.lookup(handle)
	if !ok {
		return bounty.Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	return copySlot(slot), nil
}

func (tx *memTx) Save(_ context.Context, handle bounty.Identity, data []byte) error {
	slot, ok := tx.lookup(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, handle)
	}
	tx.slots[handle] = bounty.Slot{Owner: slot.Owner, Data: append([]byte(nil), data...)}
	return nil
}

func (tx *memTx) balance(account bounty.Identity) uint64 {
	if v, ok := tx.balances[account]; ok {
		return v
	}
	return tx.base.balances[account]
}

func (tx *memTx) Transfer(_ context.Context, from bounty.AccountMeta, to bounty.Identity, amount uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrUnsignedDebit, from.Key)
	}
	have := tx.balance(from.Key)
	if have < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from.Key, have, amount)
	}
	tx.balances[from.Key] = have - amount
	credited, carry := bits.Add64(tx.balance(to), amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to)
	}
	tx.balances[to] = credited
	return nil
}
