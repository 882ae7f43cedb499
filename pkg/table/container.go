package table

import (
	"quorum/pkg/bucket"
	"quorum/pkg/epoch"
)

// Container is the shape every table variant in this family implements.
// Every method takes the calling goroutine's EBR participant handle
// (see pkg/epoch.Participant) rather than managing registration itself,
// so one Container can be shared across as many goroutines as the
// underlying EBR manager's Config.MaxParticipants allows.
type Container interface {
	// Get returns hash's associated value and whether it is present, as
	// of the calling participant's linearization point.
	Get(p *epoch.Participant, hash bucket.Hash128) (value any, present bool)

	// Put unconditionally installs value for hash, returning the value
	// it displaced, if any.
	Put(p *epoch.Participant, hash bucket.Hash128, value any) (prior any, hadPrior bool)

	// Add installs value for hash only if hash is not already present.
	Add(p *epoch.Participant, hash bucket.Hash128, value any) (prior any, hadPrior bool)

	// Replace installs value for hash only if hash is already present.
	Replace(p *epoch.Participant, hash bucket.Hash128, value any) (prior any, hadPrior bool)

	// Remove tombstones hash, returning the value it removed, if any.
	Remove(p *epoch.Participant, hash bucket.Hash128) (prior any, hadPrior bool)

	// Len returns the container's approximate live-key count.
	Len() int64

	// Destroy releases the container's resources. Callers must ensure
	// no participant has an in-flight operation first.
	Destroy()
}

// Entry is one live key's value in a snapshot view (the key itself is
// not included), tagged with the ordering keys a SnapshotableContainer's
// View sorts by: create
// epoch primary, write epoch and bucket index as tie-breakers.
type Entry struct {
	Value       any
	CreateEpoch uint64
	WriteEpoch  uint64
	BucketIndex int
}

// SnapshotableContainer is a Container whose variant supports fully
// consistent, order-preserving snapshot views — spec.md's "for some
// variants" qualifier on view support. A deadlock-free single-threaded
// reference table, for instance, might not bother implementing one.
type SnapshotableContainer interface {
	Container

	// View returns every live key as of the calling participant's
	// linearization point, ordered by insertion epoch.
	View(p *epoch.Participant) []Entry
}
