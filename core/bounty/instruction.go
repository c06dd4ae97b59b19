package bounty

import (
	"fmt"
)

// Op is the wire discriminant of an instruction.
type Op uint8

const (
	OpCreateTask Op = iota
	OpSubmitTask
	OpWithdrawSubmission
	OpSetTaskToVoting
	OpVote
	OpPayout
)

var opNames = [...]string{
	OpCreateTask:         "create_task",
	OpSubmitTask:         "submit_task",
	OpWithdrawSubmission: "withdraw_submission",
	OpSetTaskToVoting:    "set_task_to_voting",
	OpVote:               "vote",
	OpPayout:             "payout",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Instruction is one decoded operation.
type Instruction interface {
	Op() Op
	encode(w *writer)
}

// CreateTask opens a new task; the invoking party becomes its manager.
type CreateTask struct {
	AuditProgramRef string   `json:"audit_program_ref"`
	StakeAmount     uint64   `json:"stake_amount"`
	Deadline        int64    `json:"deadline"`
	StakePot        Identity `json:"stake_pot"`
}

// SubmitTask stakes into the pot and registers a candidate payload.
type SubmitTask struct {
	Payload string `json:"payload"`
}

// WithdrawSubmission is declared on the wire but has no handler.
type WithdrawSubmission struct{}

// SetTaskToVoting closes submissions and opens voting until Deadline.
type SetTaskToVoting struct {
	Deadline int64 `json:"deadline"`
}

// Vote casts the voter's single vote for a candidate.
type Vote struct{}

// Payout is declared on the wire but has no handler.
type Payout struct{}

func (CreateTask) Op() Op         { return OpCreateTask }
func (SubmitTask) Op() Op         { return OpSubmitTask }
func (WithdrawSubmission) Op() Op { return OpWithdrawSubmission }
func (SetTaskToVoting) Op() Op    { return OpSetTaskToVoting }
func (Vote) Op() Op               { return OpVote }
func (Payout) Op() Op             { return OpPayout }

func (i CreateTask) encode(w *writer) {
	w.str(i.AuditProgramRef)
	w.u64(i.StakeAmount)
	w.i64(i.Deadline)
	w.identity(i.StakePot)
}

func (i SubmitTask) encode(w *writer)      { w.str(i.Payload) }
func (WithdrawSubmission) encode(*writer)  {}
func (i SetTaskToVoting) encode(w *writer) { w.i64(i.Deadline) }
func (Vote) encode(*writer)                {}
func (Payout) encode(*writer)              {}

// EncodeInstruction serializes an instruction: one tag byte followed by its fields.
func EncodeInstruction(ins Instruction) []byte {
	w := &writer{}
	w.u8(uint8(ins.Op()))
	ins.encode(w)
	return w.buf
}

// DecodeInstruction parses a tagged payload. Unknown tags, short fields, and
// trailing bytes all fail with ErrDecode.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	r := &reader{buf: data}
	op := Op(r.u8())

	var ins Instruction
	switch op {
	case OpCreateTask:
		ins = CreateTask{
			AuditProgramRef: r.str(),
			StakeAmount:     r.u64(),
			Deadline:        r.i64(),
			StakePot:        r.identity(),
		}
	case OpSubmitTask:
		ins = SubmitTask{Payload: r.str()}
	case OpWithdrawSubmission:
		ins = WithdrawSubmission{}
	case OpSetTaskToVoting:
		ins = SetTaskToVoting{Deadline: r.i64()}
	case OpVote:
		ins = Vote{}
	case OpPayout:
		ins = Payout{}
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrDecode, uint8(op))
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, op, r.err)
	}
	if n := r.remaining(); n > 0 {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrDecode, op, n)
	}
	return ins, nil
}
