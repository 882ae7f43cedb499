package epoch

import "sync/atomic"

// Header is the allocation header the spec attaches to every tracked
// allocation: create_epoch, an atomic write_epoch, retire_epoch, and the
// retirement-list link. It is meant to be embedded (never pointed to
// indirectly) inside the type it protects, so that CommitWrite/
// HelpCommit/Retire can operate on *Header alone while the enclosing
// value stays reachable for exactly as long as its Header is reachable.
type Header struct {
	createEpoch atomic.Uint64
	writeEpoch  atomic.Uint64
	retireEpoch uint64
	retired     bool
	next        *Header
}

// NewHeader returns a Header stamped with m's current epoch as its
// create_epoch. Embed the result (by value) in any type the manager
// should track.
func NewHeader(m *Manager) Header {
	var h Header
	h.createEpoch.Store(m.epoch.Load())
	return h
}

// NewHeaderLazy returns a zero Header whose create_epoch is left at 0.
// Record uses this instead of NewHeader: a record's create_epoch is
// resolved on first need (normally by a view walk) via HelpCreateEpoch,
// falling back to the record's own write_epoch, rather than stamped at
// allocation time — allocation happens before the write that makes the
// record live is committed, so an eager create_epoch would not be the
// value spec.md's view ordering actually wants.
func NewHeaderLazy() Header {
	return Header{}
}

// CreateEpoch returns the epoch at which this allocation was created.
// It reads as 0 for a header built with NewHeaderLazy (every Record)
// until HelpCreateEpoch or SetEpochs installs a value.
func (h *Header) CreateEpoch() uint64 { return h.createEpoch.Load() }

// HelpCreateEpoch fills in a zero create_epoch from fallback (normally
// the record's own write_epoch) via CAS, and returns whichever value
// ends up installed. Mirrors HelpCommit's "any reader can help" shape,
// per spec.md §4.3 view step 2.
func (h *Header) HelpCreateEpoch(fallback uint64) uint64 {
	h.createEpoch.CompareAndSwap(0, fallback)
	return h.createEpoch.Load()
}

// SetEpochs installs create and write epochs directly, bypassing the
// normal Alloc/CommitWrite flow. Used only to re-host an already
// committed allocation at a new location (migration): the record keeps
// its original linearization point instead of acquiring a new one.
func (h *Header) SetEpochs(create, write uint64) {
	h.createEpoch.Store(create)
	h.writeEpoch.Store(write)
}

// WriteEpoch returns the currently committed write epoch, or 0 if the
// write has not yet been committed (see Manager.CommitWrite).
func (h *Header) WriteEpoch() uint64 { return h.writeEpoch.Load() }

// RetireEpoch returns the epoch at which this allocation was retired, or
// 0 if it has not been retired.
func (h *Header) RetireEpoch() uint64 { return h.retireEpoch }

// Box is a generic tracked allocation: a Header plus an opaque value.
// Manager.Alloc returns a *Box[T]; the caller accesses the header via
// &box.Header and the payload via box.Value.
type Box[T any] struct {
	Header
	Value T
}

// Alloc returns a zero-initialized Box[T] stamped with the manager's
// current epoch as its create_epoch. Go's allocator cannot fail the way
// the spec's alloc(n) can (OOM panics instead of returning an error), so
// there is no error return; the library does not attempt degraded
// operation on exhaustion, matching spec.md §7.
func Alloc[T any](m *Manager) *Box[T] {
	b := &Box[T]{}
	b.createEpoch.Store(m.epoch.Load())
	return b
}
