package bounty

import "context"

// Slot is the raw content of one record storage slot.
type Slot struct {
	Owner Identity
	Data  []byte
}

// RecordStore holds serialized records keyed by slot handle.
type RecordStore interface {
	// Allocate creates an empty slot owned by owner, paid for by payer.
	// It fails if the slot already exists.
	Allocate(ctx context.Context, handle, payer, owner Identity) error
	Load(ctx context.Context, handle Identity) (Slot, error)
	// Save replaces the slot data, resizing it as needed.
	Save(ctx context.Context, handle Identity, data []byte) error
}

// TransferGateway moves value between parties. The debited party must be a signer.
type TransferGateway interface {
	Transfer(ctx context.Context, from AccountMeta, to Identity, amount uint64) error
}

// Clock supplies the current logical unix time.
type Clock interface {
	Now(ctx context.Context) (int64, error)
}

// Env is the set of collaborators available to one atomic invocation.
type Env interface {
	Records() RecordStore
	Transfers() TransferGateway
	Clock() Clock
}
