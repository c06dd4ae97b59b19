package bounty

import "fmt"

// RecordVersion is the layout version written by EncodeRecord.
const RecordVersion uint8 = 1

// EncodeRecord serializes a record in version 1 layout:
//
//	version u8 | manager | audit_program_ref str | stake_pot
//	| submissions u32 n, n x (submitter, payload str)
//	| votes u32 n, n x (voter, candidate)
//	| stake_amount u64 | total_stake_amount u64
//	| status u8 [deadline i64] | extension u32 len, bytes
//
// Map entries are written in ascending key order. The extension block is
// empty in version 1 and skipped by readers, leaving room for new fields.
func EncodeRecord(r *TaskRecord) []byte {
	w := &writer{buf: make([]byte, 0, 128+r.Submissions.Len()*64+r.Votes.Len()*64)}
	w.u8(RecordVersion)
	w.identity(r.Manager)
	w.str(r.AuditProgramRef)
	w.identity(r.StakePot)

	w.u32(uint32(r.Submissions.Len()))
	r.Submissions.Each(func(k Identity, payload string) bool {
		w.identity(k)
		w.str(payload)
		return true
	})
	w.u32(uint32(r.Votes.Len()))
	r.Votes.Each(func(k Identity, candidate Identity) bool {
		w.identity(k)
		w.identity(candidate)
		return true
	})

	w.u64(r.StakeAmount)
	w.u64(r.TotalStakeAmount)
	w.u8(uint8(r.Status.Phase))
	if r.Status.Phase.hasDeadline() {
		w.i64(r.Status.Deadline)
	}
	w.u32(0)
	return w.buf
}

// DecodeRecord parses a stored record. Any structural problem, including
// unsorted or repeated map keys, fails with ErrCorruptRecord.
func DecodeRecord(data []byte) (*TaskRecord, error) {
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}

func decodeRecord(data []byte) (*TaskRecord, error) {
	r := &reader{buf: data}
	if v := r.u8(); r.err == nil && v != RecordVersion {
		return nil, fmt.Errorf("unsupported record version %d", v)
	}

	rec := &TaskRecord{}
	rec.Manager = r.identity()
	rec.AuditProgramRef = r.str()
	rec.StakePot = r.identity()

	n := r.u32()
	if r.err == nil && uint64(n)*(IdentitySize+4) > uint64(r.remaining()) {
		return nil, fmt.Errorf("submission count %d exceeds payload", n)
	}
	prev, first := Identity{}, true
	for i := uint32(0); i < n && r.err == nil; i++ {
		k := r.identity()
		payload := r.str()
		if !first && k.Compare(prev) <= 0 {
			return nil, fmt.Errorf("submission keys not strictly ascending at %d", i)
		}
		rec.Submissions.entries = append(rec.Submissions.entries, entry[string]{Key: k, Value: payload})
		prev, first = k, false
	}

	n = r.u32()
	if r.err == nil && uint64(n)*2*IdentitySize > uint64(r.remaining()) {
		return nil, fmt.Errorf("vote count %d exceeds payload", n)
	}
	prev, first = Identity{}, true
	for i := uint32(0); i < n && r.err == nil; i++ {
		k := r.identity()
		candidate := r.identity()
		if !first && k.Compare(prev) <= 0 {
			return nil, fmt.Errorf("vote keys not strictly ascending at %d", i)
		}
		rec.Votes.entries = append(rec.Votes.entries, entry[Identity]{Key: k, Value: candidate})
		prev, first = k, false
	}

	rec.StakeAmount = r.u64()
	rec.TotalStakeAmount = r.u64()

	phase := Phase(r.u8())
	switch phase {
	case PhaseAcceptingSubmissions, PhaseVoting:
		rec.Status = Status{Phase: phase, Deadline: r.i64()}
	case PhaseCompleted, PhaseCancelled:
		rec.Status = Status{Phase: phase}
	default:
		if r.err == nil {
			return nil, fmt.Errorf("unknown phase tag %d", uint8(phase))
		}
	}

	ext := r.u32()
	r.take(int(ext))
	if r.err != nil {
		return nil, r.err
	}
	if n := r.remaining(); n > 0 {
		return nil, fmt.Errorf("%d trailing bytes", n)
	}
	return rec, nil
}
