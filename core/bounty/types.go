package bounty

import (
	"encoding/json"
	"fmt"
)

// Phase is the lifecycle tag of a task.
type Phase uint8

const (
	PhaseAcceptingSubmissions Phase = iota
	PhaseVoting
	PhaseCompleted
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseAcceptingSubmissions:
		return "accepting_submissions"
	case PhaseVoting:
		return "voting"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ParsePhase is the inverse of Phase.String for the four named phases.
func ParsePhase(s string) (Phase, error) {
	for p := PhaseAcceptingSubmissions; p <= PhaseCancelled; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// hasDeadline reports whether the phase carries its own deadline.
func (p Phase) hasDeadline() bool {
	return p == PhaseAcceptingSubmissions || p == PhaseVoting
}

// Status is a phase plus the deadline bounding it, where the phase has one.
type Status struct {
	Phase    Phase
	Deadline int64
}

// AcceptingSubmissions opens the submission window until deadline.
func AcceptingSubmissions(deadline int64) Status {
	return Status{Phase: PhaseAcceptingSubmissions, Deadline: deadline}
}

// Voting opens the voting window until deadline.
func Voting(deadline int64) Status { return Status{Phase: PhaseVoting, Deadline: deadline} }

// Completed is the terminal phase after payout.
func Completed() Status { return Status{Phase: PhaseCompleted} }

// Cancelled is the alternate terminal phase.
func Cancelled() Status { return Status{Phase: PhaseCancelled} }

func (s Status) String() string {
	if s.Phase.hasDeadline() {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Deadline)
	}
	return s.Phase.String()
}

// MarshalJSON renders {"phase": ..., "deadline": ...}.
func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		Phase    string `json:"phase"`
		Deadline *int64 `json:"deadline,omitempty"`
	}{Phase: s.Phase.String()}
	if s.Phase.hasDeadline() {
		d := s.Deadline
		out.Deadline = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in struct {
		Phase    string `json:"phase"`
		Deadline int64  `json:"deadline"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p, err := ParsePhase(in.Phase)
	if err != nil {
		return err
	}
	*s = Status{Phase: p}
	if p.hasDeadline() {
		s.Deadline = in.Deadline
	}
	return nil
}

// TaskRecord is the persisted state of one bounty task.
type TaskRecord struct {
	Manager          Identity
	AuditProgramRef  string
	StakePot         Identity
	Submissions      Submissions
	Votes            Votes
	StakeAmount      uint64
	TotalStakeAmount uint64
	Status           Status
}

// NewTaskRecord returns a record in its initial AcceptingSubmissions phase.
func NewTaskRecord(manager Identity, auditProgramRef string, stakeAmount uint64, deadline int64, stakePot Identity) *TaskRecord {
	return &TaskRecord{
		Manager:         manager,
		AuditProgramRef: auditProgramRef,
		StakePot:        stakePot,
		StakeAmount:     stakeAmount,
		Status:          AcceptingSubmissions(deadline),
	}
}

// Clone returns a deep copy so handlers can mutate without touching the loaded value.
func (r *TaskRecord) Clone() *TaskRecord {
	c := *r
	c.Submissions = Submissions{r.Submissions.clone()}
	c.Votes = Votes{r.Votes.clone()}
	return &c
}

// TaskView is the JSON read model of a record.
type TaskView struct {
	Manager          Identity            `json:"manager"`
	AuditProgramRef  string              `json:"audit_program_ref"`
	StakePot         Identity            `json:"stake_pot"`
	Submissions      map[string]string   `json:"submissions"`
	Votes            map[string]Identity `json:"votes"`
	StakeAmount      uint64              `json:"stake_amount"`
	TotalStakeAmount uint64              `json:"total_stake_amount"`
	Status           Status              `json:"status"`
}

// View converts the record into its JSON read model.
func (r *TaskRecord) View() TaskView {
	v := TaskView{
		Manager:          r.Manager,
		AuditProgramRef:  r.AuditProgramRef,
		StakePot:         r.StakePot,
		Submissions:      make(map[string]string, r.Submissions.Len()),
		Votes:            make(map[string]Identity, r.Votes.Len()),
		StakeAmount:      r.StakeAmount,
		TotalStakeAmount: r.TotalStakeAmount,
		Status:           r.Status,
	}
	r.Submissions.Each(func(k Identity, payload string) bool {
		v.Submissions[k.String()] = payload
		return true
	})
	r.Votes.Each(func(k Identity, candidate Identity) bool {
		v.Votes[k.String()] = candidate
		return true
	})
	return v
}

// TallyEntry counts the votes received by one candidate.
type TallyEntry struct {
	Candidate Identity `json:"candidate"`
	Votes     int      `json:"votes"`
}

// Tally counts votes per submitted candidate in key order. Candidates
// without votes are listed with zero. It does not select a winner.
func (r *TaskRecord) Tally() []TallyEntry {
	counts := make(map[Identity]int, r.Submissions.Len())
	r.Votes.Each(func(_ Identity, candidate Identity) bool {
		counts[candidate]++
		return true
	})
	out := make([]TallyEntry, 0, r.Submissions.Len())
	for _, k := range r.Submissions.Keys() {
		out = append(out, TallyEntry{Candidate: k, Votes: counts[k]})
	}
	return out
}
