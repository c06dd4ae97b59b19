package bounty

import (
	"context"
	"fmt"
)

// accountAt returns the positional handle i.
func accountAt(accounts []AccountMeta, i int) (AccountMeta, error) {
	if i >= len(accounts) {
		return AccountMeta{}, fmt.Errorf("%w: need handle %d, got %d", ErrNotEnoughAccounts, i, len(accounts))
	}
	return accounts[i], nil
}

func requireSigner(a AccountMeta) error {
	if !a.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, a.Key)
	}
	return nil
}

// readClock checks the clock handle and samples the time once.
func readClock(ctx context.Context, env Env, clock AccountMeta) (int64, error) {
	if clock.Key != ClockSysvarID {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidClockAccount, clock.Key)
	}
	now, err := env.Clock().Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

// loadOwned loads and decodes a record after verifying this program owns its slot.
func (p *Processor) loadOwned(ctx context.Context, env Env, handle Identity) (*TaskRecord, error) {
	slot, err := env.Records().Load(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrStore, handle, err)
	}
	if slot.Owner != p.programID {
		return nil, fmt.Errorf("%w: slot %s owned by %s", ErrOwnership, handle, slot.Owner)
	}
	return DecodeRecord(slot.Data)
}

func (p *Processor) save(ctx context.Context, env Env, handle Identity, rec *TaskRecord) error {
	if err := env.Records().Save(ctx, handle, EncodeRecord(rec)); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrStore, handle, err)
	}
	return nil
}

// checkWindow verifies the record is in phase and now is before its deadline.
func checkWindow(rec *TaskRecord, phase Phase, now int64) error {
	if rec.Status.Phase != phase {
		return fmt.Errorf("%w: want %s, task is %s", ErrPhaseMismatch, phase, rec.Status)
	}
	if now >= rec.Status.Deadline {
		return fmt.Errorf("%w: now %d, deadline %d", ErrDeadlineExpired, now, rec.Status.Deadline)
	}
	return nil
}
