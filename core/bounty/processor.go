package bounty

import (
	"context"
	"fmt"
	"math/bits"
)

// Processor applies decoded instructions to task records. It holds no
// state between invocations; every call loads, validates, and saves
// within the Env it is handed.
type Processor struct {
	programID Identity
	rules     Rules
}

// NewProcessor builds a processor for the given program identity.
func NewProcessor(programID Identity, rules Rules) *Processor {
	return &Processor{programID: programID, rules: rules}
}

// ProgramID returns the identity that owns task record slots.
func (p *Processor) ProgramID() Identity { return p.programID }

// Rules returns the active rule set.
func (p *Processor) Rules() Rules { return p.rules }

// Result describes a successfully applied instruction.
type Result struct {
	Op     Op
	Task   Identity
	Actor  Identity
	Record *TaskRecord
}

// Process decodes data and applies it. On error nothing has been saved by
// this call; callers run it inside an atomic Env so transfers roll back too.
func (p *Processor) Process(ctx context.Context, env Env, accounts []AccountMeta, data []byte) (*Result, error) {
	ins, err := DecodeInstruction(data)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, env, accounts, ins)
}

// Apply runs an already decoded instruction.
func (p *Processor) Apply(ctx context.Context, env Env, accounts []AccountMeta, ins Instruction) (*Result, error) {
	if ins == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrDecode)
	}
	var (
		res *Result
		err error
	)
	switch ins := ins.(type) {
	case CreateTask:
		res, err = p.createTask(ctx, env, accounts, ins)
	case SubmitTask:
		res, err = p.submitTask(ctx, env, accounts, ins)
	case SetTaskToVoting:
		res, err = p.setTaskToVoting(ctx, env, accounts, ins)
	case Vote:
		res, err = p.vote(ctx, env, accounts)
	case WithdrawSubmission:
		err = ErrWithdrawUnspecified
	case Payout:
		err = ErrPayoutUnspecified
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedOperation, ins)
	}
	if err != nil {
		return nil, failed(ins.Op(), err)
	}
	res.Op = ins.Op()
	return res, nil
}

// accounts: [manager, record slot, system program]
func (p *Processor) createTask(ctx context.Context, env Env, accounts []AccountMeta, ins CreateTask) (*Result, error) {
	system, err := accountAt(accounts, 2)
	if err != nil {
		return nil, err
	}
	manager, slot := accounts[0], accounts[1]
	if system.Key != SystemProgramID {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidSystemAccount, system.Key)
	}
	if p.rules.CreatorMustSign {
		if err := requireSigner(manager); err != nil {
			return nil, err
		}
	}

	if err := env.Records().Allocate(ctx, slot.Key, manager.Key, p.programID); err != nil {
		return nil, fmt.Errorf("%w: allocate %s: %w", ErrStore, slot.Key, err)
	}

	rec := NewTaskRecord(manager.Key, ins.AuditProgramRef, ins.StakeAmount, ins.Deadline, ins.StakePot)
	if err := p.save(ctx, env, slot.Key, rec); err != nil {
		return nil, err
	}
	return &Result{Task: slot.Key, Actor: manager.Key, Record: rec}, nil
}

// accounts: [record slot, submitter, stake pot, clock]
func (p *Processor) submitTask(ctx context.Context, env Env, accounts []AccountMeta, ins SubmitTask) (*Result, error) {
	clock, err := accountAt(accounts, 3)
	if err != nil {
		return nil, err
	}
	slot, submitter, pot := accounts[0], accounts[1], accounts[2]

	now, err := readClock(ctx, env, clock)
	if err != nil {
		return nil, err
	}
	loaded, err := p.loadOwned(ctx, env, slot.Key)
	if err != nil {
		return nil, err
	}
	if err := checkWindow(loaded, PhaseAcceptingSubmissions, now); err != nil {
		return nil, err
	}
	if pot.Key != loaded.StakePot {
		return nil, fmt.Errorf("%w: got %s, task uses %s", ErrStakePotMismatch, pot.Key, loaded.StakePot)
	}
	if p.rules.Resubmission == ResubmitReject && loaded.Submissions.Contains(submitter.Key) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubmission, submitter.Key)
	}
	total, carry := bits.Add64(loaded.TotalStakeAmount, loaded.StakeAmount, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: stake total would overflow", ErrTransferFailure)
	}

	if err := env.Transfers().Transfer(ctx, submitter, pot.Key, loaded.StakeAmount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailure, err)
	}

	rec := loaded.Clone()
	rec.TotalStakeAmount = total
	rec.Submissions.Put(submitter.Key, ins.Payload)
	if err := p.save(ctx, env, slot.Key, rec); err != nil {
		return nil, err
	}
	return &Result{Task: slot.Key, Actor: submitter.Key, Record: rec}, nil
}

// accounts: [record slot, manager signer, clock]
func (p *Processor) setTaskToVoting(ctx context.Context, env Env, accounts []AccountMeta, ins SetTaskToVoting) (*Result, error) {
	clock, err := accountAt(accounts, 2)
	if err != nil {
		return nil, err
	}
	slot, signer := accounts[0], accounts[1]

	now, err := readClock(ctx, env, clock)
	if err != nil {
		return nil, err
	}
	// Checked under every rule set.
	if ins.Deadline <= now {
		return nil, fmt.Errorf("%w: deadline %d, now %d", ErrNotFutureDeadline, ins.Deadline, now)
	}

	loaded, err := p.loadOwned(ctx, env, slot.Key)
	if err != nil {
		return nil, err
	}
	if err := requireSigner(signer); err != nil {
		return nil, err
	}
	if p.rules.ManagerMustSignVoting && signer.Key != loaded.Manager {
		return nil, fmt.Errorf("%w: %s", ErrNotManager, signer.Key)
	}
	if p.rules.EnforcePhaseOrder && loaded.Status.Phase != PhaseAcceptingSubmissions {
		return nil, fmt.Errorf("%w: cannot open voting from %s", ErrPhaseMismatch, loaded.Status)
	}

	rec := loaded.Clone()
	rec.Status = Voting(ins.Deadline)
	if err := p.save(ctx, env, slot.Key, rec); err != nil {
		return nil, err
	}
	return &Result{Task: slot.Key, Actor: signer.Key, Record: rec}, nil
}

// accounts: [record slot, voter, candidate, clock]
func (p *Processor) vote(ctx context.Context, env Env, accounts []AccountMeta) (*Result, error) {
	clock, err := accountAt(accounts, 3)
	if err != nil {
		return nil, err
	}
	slot, voter, candidate := accounts[0], accounts[1], accounts[2]

	now, err := readClock(ctx, env, clock)
	if err != nil {
		return nil, err
	}
	loaded, err := p.loadOwned(ctx, env, slot.Key)
	if err != nil {
		return nil, err
	}
	if err := checkWindow(loaded, PhaseVoting, now); err != nil {
		return nil, err
	}
	if p.rules.VoterMustSign {
		if err := requireSigner(voter); err != nil {
			return nil, err
		}
	}
	if !loaded.Submissions.Contains(voter.Key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVoter, voter.Key)
	}
	if !loaded.Submissions.Contains(candidate.Key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCandidate, candidate.Key)
	}
	if loaded.Votes.Contains(voter.Key) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateVote, voter.Key)
	}

	rec := loaded.Clone()
	rec.Votes.Put(voter.Key, candidate.Key)
	if err := p.save(ctx, env, slot.Key, rec); err != nil {
		return nil, err
	}
	return &Result{Task: slot.Key, Actor: voter.Key, Record: rec}, nil
}
