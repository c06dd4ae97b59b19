package bounty

import (
	"bytes"
	"errors"
	"testing"
)

func sampleRecord() *TaskRecord {
	rec := NewTaskRecord(id(1), "audit", 10, 500, id(3))
	rec.Submissions.Put(id(12), "c")
	rec.Submissions.Put(id(10), "a")
	rec.Submissions.Put(id(11), "b")
	rec.Votes.Put(id(11), id(10))
	rec.Votes.Put(id(10), id(12))
	rec.TotalStakeAmount = 30
	rec.Status = Voting(900)
	return rec
}

func TestEncodeRecordIsOrderIndependent(t *testing.T) {
	a := sampleRecord()

	b := NewTaskRecord(id(1), "audit", 10, 500, id(3))
	b.Submissions.Put(id(10), "a")
	b.Submissions.Put(id(11), "b")
	b.Submissions.Put(id(12), "c")
	b.Votes.Put(id(10), id(12))
	b.Votes.Put(id(11), id(10))
	b.TotalStakeAmount = 30
	b.Status = Voting(900)

	if !bytes.Equal(EncodeRecord(a), EncodeRecord(b)) {
		t.Fatalf("insertion order changed the encoding")
	}

	decoded, err := DecodeRecord(EncodeRecord(a))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(EncodeRecord(decoded), EncodeRecord(a)) {
		t.Fatalf("re-encoding a decoded record is not stable")
	}
	keys := decoded.Submissions.Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1].Compare(keys[i]) >= 0 {
			t.Fatalf("keys not ascending: %v", keys)
		}
	}
}

func TestDecodeRecordTerminalPhases(t *testing.T) {
	for _, st := range []Status{Completed(), Cancelled(), AcceptingSubmissions(-1)} {
		rec := NewTaskRecord(id(1), "", 0, 0, id(2))
		rec.Status = st
		got, err := DecodeRecord(EncodeRecord(rec))
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if got.Status != st {
			t.Fatalf("expected %s, got %s", st, got.Status)
		}
	}
}

func TestDecodeRecordSkipsExtensionBlock(t *testing.T) {
	data := EncodeRecord(sampleRecord())
	// Replace the empty extension with a 3 byte block a newer writer might add.
	data = append(data[:len(data)-4], 3, 0, 0, 0, 'n', 'e', 'w')
	if _, err := DecodeRecord(data); err != nil {
		t.Fatalf("expected extension block to be skipped: %v", err)
	}
}

func TestDecodeRecordRejectsCorruption(t *testing.T) {
	good := EncodeRecord(sampleRecord())

	unsorted := NewTaskRecord(id(1), "", 1, 1, id(2))
	unsorted.Submissions.entries = []entry[string]{{Key: id(5), Value: "x"}, {Key: id(4), Value: "y"}}

	dup := NewTaskRecord(id(1), "", 1, 1, id(2))
	dup.Votes.entries = []entry[Identity]{{Key: id(5), Value: id(6)}, {Key: id(5), Value: id(7)}}

	badPhase := append([]byte(nil), EncodeRecord(NewTaskRecord(id(1), "", 1, 1, id(2)))...)
	badPhase[len(badPhase)-4-8-1] = 9

	cases := map[string][]byte{
		"empty":           nil,
		"future version":  append([]byte{RecordVersion + 1}, good[1:]...),
		"truncated":       good[:len(good)-6],
		"trailing":        append(append([]byte(nil), good...), 1),
		"unsorted keys":   EncodeRecord(unsorted),
		"duplicate voter": EncodeRecord(dup),
		"unknown phase":   badPhase,
	}
	for name, data := range cases {
		if _, err := DecodeRecord(data); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("%s: expected corrupt record, got %v", name, err)
		}
	}
}

func TestTallyCountsPerCandidate(t *testing.T) {
	tally := sampleRecord().Tally()
	if len(tally) != 3 {
		t.Fatalf("expected all candidates listed, got %d", len(tally))
	}
	want := map[Identity]int{id(10): 1, id(11): 0, id(12): 1}
	for _, e := range tally {
		if want[e.Candidate] != e.Votes {
			t.Fatalf("candidate %s: got %d votes, want %d", e.Candidate, e.Votes, want[e.Candidate])
		}
	}
}
