package revdb

import (
	"fmt"
)

type Op int

const (
	OpNone   Op = 0
	OpPut    Op = 1
	OpDelete Op = 2
)

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

func (v Op) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none":
		*v = OpNone
	case "put":
		*v = OpPut
	case "delete":
		*v = OpDelete
	default:
		return fmt.Errorf("invalid op %q", b)
	}
	return nil
}

// Change is an entry of the change feed. Seq is one-based: a consumer that
// has processed a change can resume with Changes(change.Seq, ...).
type Change struct {
	Seq uint64 `json:"seq"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
	Op  Op     `json:"op"`
}

// Changes lists the latest write of every document changed after since,
// in write order. Writes superseded by a later write of the same document
// are skipped. A limit of 0 means no limit.
func (db *DB) Changes(since uint64, limit int) []Change {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	return db.changes_locked(since, limit)
}

func (db *DB) changes_locked(since uint64, limit int) []Change {
	var result []Change
	for s := since; s < db.st.Sequence; s++ {
		ref := db.st.SequenceIndex[s]
		rec := db.st.Data[ref.ID]
		if rec == nil || rec.Sequence != s {
			continue
		}
		op := OpPut
		if rec.isDeleted(ref.Rev) {
			op = OpDelete
		}
		result = append(result, Change{Seq: s + 1, ID: ref.ID, Rev: ref.Rev, Op: op})
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Sequence returns the number of writes performed on the database.
func (db *DB) Sequence() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.Sequence
}
