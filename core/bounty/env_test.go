package bounty

import (
	"context"
	"errors"
	"fmt"
)

var errNoFunds = errors.New("insufficient funds")

// fakeEnv is a minimal non-transactional Env for processor tests.
type fakeEnv struct {
	slots       map[Identity]Slot
	balances    map[Identity]uint64
	now         int64
	transferErr error
	transfers   int
}

func newFakeEnv(now int64) *fakeEnv {
	return &fakeEnv{slots: map[Identity]Slot{}, balances: map[Identity]uint64{}, now: now}
}

func (e *fakeEnv) Records() RecordStore       { return e }
func (e *fakeEnv) Transfers() TransferGateway { return e }
func (e *fakeEnv) Clock() Clock               { return e }

func (e *fakeEnv) Now(context.Context) (int64, error) { return e.now, nil }

func (e *fakeEnv) Allocate(_ context.Context, handle, _ Identity, owner Identity) error {
	if _, ok := e.slots[handle]; ok {
		return fmt.Errorf("slot %s in use", handle)
	}
	e.slots[handle] = Slot{Owner: owner}
	return nil
}

func (e *fakeEnv) Load(_ context.Context, handle Identity) (Slot, error) {
	s, ok := e.slots[handle]
	if !ok {
		return Slot{}, fmt.Errorf("slot %s not found", handle)
	}
	return s, nil
}

func (e *fakeEnv) Save(_ context.Context, handle Identity, data []byte) error {
	s := e.slots[handle]
	s.Data = append([]byte(nil), data...)
	e.slots[handle] = s
	return nil
}

func (e *fakeEnv) Transfer(_ context.Context, from AccountMeta, to Identity, amount uint64) error {
	if e.transferErr != nil {
		return e.transferErr
	}
	if !from.IsSigner {
		return ErrMissingSignature
	}
	if e.balances[from.Key] < amount {
		return errNoFunds
	}
	e.balances[from.Key] -= amount
	e.balances[to] += amount
	e.transfers++
	return nil
}

func id(b byte) Identity {
	var out Identity
	out[0] = b
	return out
}

func signer(k Identity) AccountMeta   { return AccountMeta{Key: k, IsSigner: true} }
func readonly(k Identity) AccountMeta { return AccountMeta{Key: k} }
