package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"bountypool-backend/core/bounty"
	"bountypool-backend/storage/auth"
	"bountypool-backend/storage/ledger"
)

// ErrFaucetDisabled is returned by Fund when minting is not enabled.
var ErrFaucetDisabled = errors.New("faucet disabled")

// BountyService is the entry point for signed invocations and task queries.
type BountyService struct {
	ledger  ledger.Ledger
	proc    *bounty.Processor
	metrics *Metrics
	events  *EventBus
	replay  *auth.ReplayGuard
	faucet  bool
}

// Option configures a BountyService.
type Option func(*BountyService)

// WithMetrics records invocation counters on m.
func WithMetrics(m *Metrics) Option { return func(s *BountyService) { s.metrics = m } }

// WithEvents publishes committed changes on bus.
func WithEvents(bus *EventBus) Option { return func(s *BountyService) { s.events = bus } }

// WithReplayGuard rejects an envelope identical to one applied within the
// guard's window.
func WithReplayGuard(g *auth.ReplayGuard) Option { return func(s *BountyService) { s.replay = g } }

// WithFaucet allows Fund to mint balances.
func WithFaucet(enabled bool) Option { return func(s *BountyService) { s.faucet = enabled } }

// NewBountyService wires the processor to a ledger.
func NewBountyService(l ledger.Ledger, proc *bounty.Processor, opts ...Option) *BountyService {
	s := &BountyService{ledger: l, proc: proc}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.events == nil {
		s.events = NewEventBus(0)
	}
	return s
}

// ProgramID is the identity that owns task slots and that envelopes are signed for.
func (s *BountyService) ProgramID() bounty.Identity { return s.proc.ProgramID() }

// Events exposes the bus for handlers and sinks.
func (s *BountyService) Events() *EventBus { return s.events }

// Invoke verifies env and applies its instruction in one ledger transaction.
func (s *BountyService) Invoke(ctx context.Context, env *Envelope) (_ *bounty.Result, err error) {
	start := time.Now()
	ins, err := bounty.DecodeInstruction(env.ProgramData)
	if err != nil {
		s.observe("unknown", err, start)
		return nil, err
	}
	op := ins.Op()

	metas, err := env.Verify(s.proc.ProgramID())
	if err != nil {
		s.observe(op.String(), err, start)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.replay != nil {
		digest := MessageDigest(s.proc.ProgramID(), env.Accounts, env.ProgramData)
		if !s.replay.Check(digest) {
			err := fmt.Errorf("%s: %w: envelope already applied", op, bounty.ErrUnauthorized)
			s.observe(op.String(), err, start)
			return nil, err
		}
		defer func() {
			if err != nil {
				s.replay.Forget(digest)
			}
		}()
	}

	var res *bounty.Result
	err = s.ledger.Invoke(ctx, func(e bounty.Env) error {
		var applyErr error
		res, applyErr = s.proc.Apply(ctx, e, metas, ins)
		return applyErr
	})
	s.observe(op.String(), err, start)
	if err != nil {
		log.Printf("bounty: %s rejected (%s): %v", op, bounty.Code(err), err)
		return nil, err
	}

	s.announce(res)
	return res, nil
}

func (s *BountyService) observe(op string, err error, start time.Time) {
	s.metrics.Invocations.WithLabelValues(op, bounty.Code(err)).Inc()
	s.metrics.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *BountyService) announce(res *bounty.Result) {
	evt := Event{Task: res.Task.String(), Actor: res.Actor.String()}
	switch res.Op {
	case bounty.OpCreateTask:
		evt.Type = EventTaskCreated
		evt.Message = fmt.Sprintf("task created with stake %d", res.Record.StakeAmount)
	case bounty.OpSubmitTask:
		s.metrics.Staked.Add(float64(res.Record.StakeAmount))
		evt.Type = EventSubmission
		evt.Message = fmt.Sprintf("submission staked, pot total %d", res.Record.TotalStakeAmount)
	case bounty.OpSetTaskToVoting:
		evt.Type = EventVotingOpened
		evt.Message = "voting open until " + strconv.FormatInt(res.Record.Status.Deadline, 10)
	case bounty.OpVote:
		evt.Type = EventVote
		candidate, _ := res.Record.Votes.Get(res.Actor)
		evt.Message = "vote for " + candidate.String()
	default:
		return
	}
	s.events.Publish(evt)
}

// GetTask loads and decodes the record at handle.
func (s *BountyService) GetTask(ctx context.Context, handle bounty.Identity) (*bounty.TaskRecord, error) {
	slot, err := s.ledger.Slot(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bounty.ErrStore, err)
	}
	if slot.Owner != s.proc.ProgramID() {
		return nil, fmt.Errorf("%w: %s owned by %s", bounty.ErrOwnership, handle, slot.Owner)
	}
	return bounty.DecodeRecord(slot.Data)
}

// Tally counts votes per candidate for the task at handle.
func (s *BountyService) Tally(ctx context.Context, handle bounty.Identity) ([]bounty.TallyEntry, error) {
	rec, err := s.GetTask(ctx, handle)
	if err != nil {
		return nil, err
	}
	return rec.Tally(), nil
}

// Balance returns the spendable balance of account.
func (s *BountyService) Balance(ctx context.Context, account bounty.Identity) (uint64, error) {
	return s.ledger.Balance(ctx, account)
}

// Fund mints amount into account when the faucet is enabled.
func (s *BountyService) Fund(ctx context.Context, account bounty.Identity, amount uint64) (uint64, error) {
	if !s.faucet {
		return 0, ErrFaucetDisabled
	}
	if amount == 0 {
		return 0, fmt.Errorf("fund %s: amount must be positive", account)
	}
	if err := s.ledger.Credit(ctx, account, amount); err != nil {
		return 0, err
	}
	s.events.Publish(Event{
		Type:    EventAccountFunded,
		Actor:   account.String(),
		Message: fmt.Sprintf("faucet credited %d", amount),
	})
	return s.ledger.Balance(ctx, account)
}

// PotQRCode renders a PNG that points a wallet at the task's stake pot for
// one stake amount.
func (s *BountyService) PotQRCode(ctx context.Context, handle bounty.Identity, size int) ([]byte, error) {
	rec, err := s.GetTask(ctx, handle)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	qr, err := qrcode.New(PotURI(rec), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// PotURI is the payment target encoded in the pot QR code.
func PotURI(rec *bounty.TaskRecord) string {
	return "bounty:" + rec.StakePot.String() + "?amount=" + strconv.FormatUint(rec.StakeAmount, 10)
}

// InstructionView is a decoded instruction with its operation name.
type InstructionView struct {
	Op   string             `json:"op"`
	Args bounty.Instruction `json:"args"`
}

// DecodeInstruction decodes raw instruction bytes for inspection.
func DecodeInstruction(data []byte) (*InstructionView, error) {
	ins, err := bounty.DecodeInstruction(data)
	if err != nil {
		return nil, err
	}
	return &InstructionView{Op: ins.Op().String(), Args: ins}, nil
}
