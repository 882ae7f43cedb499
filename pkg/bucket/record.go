package bucket

import "quorum/pkg/epoch"

// Flags describe what state transition a Record represents. A record
// never carries more than one of Used/Deleted. Moving/Moved only ever
// appear during a migration, on value-less marker records pushed atop a
// bucket's history in the old store; a marker carries neither Used nor
// Deleted.
type Flags uint32

const (
	// Used marks a record that holds a live value.
	Used Flags = 1 << iota
	// Deleted marks a tombstone: the key was present and was removed.
	Deleted
	// Moving marks that this bucket's migration to the new store has
	// started. Moving records never carry new user data.
	Moving
	// Moved marks that this bucket's migration to the new store has
	// finished. Moved records never carry new user data.
	Moved
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Record is one immutable entry in a bucket's modification history.
// Once installed (pushed onto a Bucket's list via CAS), a Record is
// never mutated except for its embedded epoch.Header, whose write_epoch
// transitions at most once, from 0 to a final committed value.
type Record struct {
	epoch.Header

	Flags Flags
	// Value is the opaque payload the table stores; nil for Deleted,
	// Moving, and Moved records.
	Value any
	// Prev is the record this one superseded — the bucket's history is
	// a singly linked stack, push-only, so Prev chains are acyclic by
	// construction.
	Prev *Record
}

// NewRecord allocates a Record with its create_epoch left unresolved
// (see epoch.NewHeaderLazy). The caller commits it with
// mgr.CommitWrite once it has won the head-of-list CAS.
func NewRecord(flags Flags, value any, prev *Record) *Record {
	return &Record{
		Header: epoch.NewHeaderLazy(),
		Flags:  flags,
		Value:  value,
		Prev:   prev,
	}
}

// CopyForMigration builds a Used record re-hosting orig's value into a
// new store during migration. It preserves orig's create_epoch and
// write_epoch exactly: a migrated record is not a new write and must
// not acquire a new linearization point.
func CopyForMigration(orig *Record, prev *Record) *Record {
	r := &Record{
		Header: epoch.NewHeaderLazy(),
		Flags:  Used,
		Value:  orig.Value,
		Prev:   prev,
	}
	r.SetEpochs(orig.CreateEpoch(), orig.WriteEpoch())
	return r
}

// IsLive reports whether r represents a present, non-future value as of
// readEpoch: it must be Used and committed at or before readEpoch.
// Callers are expected to have already called mgr.HelpCommit(&r.Header)
// so r.WriteEpoch() is never observed as 0 here.
func (r *Record) IsLive(readEpoch uint64) bool {
	return r.Flags.Has(Used) && r.WriteEpoch() != 0 && r.WriteEpoch() <= readEpoch
}

// IsTombstone reports whether r represents a deletion visible at or
// before readEpoch.
func (r *Record) IsTombstone(readEpoch uint64) bool {
	return r.Flags.Has(Deleted) && r.WriteEpoch() != 0 && r.WriteEpoch() <= readEpoch
}
