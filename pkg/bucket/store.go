package bucket

import (
	"sync/atomic"

	"quorum/pkg/epoch"
)

// Store is one instantiation of the bucket array: a power-of-two sized
// slice of Bucket headers plus the approximate used/tombstone counters
// and size thresholds that drive migration. A table has exactly one
// active Store at a time; a Store is retired via the EBR manager once
// the migration to its successor has completed.
type Store struct {
	epoch.Header

	buckets []Bucket
	mask    uint64 // last_slot: size-1

	threshold int64 // used_count at or above this triggers migration (75% full)

	usedCount atomic.Int64
	delCount  atomic.Int64

	// target is the migration-target Store pointer: write-once via CAS,
	// nil until some writer begins a migration out of this store.
	target atomic.Pointer[Store]
}

// NewStore allocates a Store with 2^sizeExp buckets.
func NewStore(mgr *epoch.Manager, sizeExp uint) *Store {
	size := uint64(1) << sizeExp
	s := &Store{
		Header:  epoch.NewHeader(mgr),
		buckets: make([]Bucket, size),
		mask:    size - 1,
	}
	s.threshold = int64(size) * 3 / 4
	return s
}

// Size returns the number of buckets in the store.
func (s *Store) Size() uint64 { return s.mask + 1 }

// Mask returns size-1, the index mask used to fold a hash into a slot.
func (s *Store) Mask() uint64 { return s.mask }

// Threshold returns the used-count at or above which migration
// triggers (75% of the store's size).
func (s *Store) Threshold() int64 { return s.threshold }

// UsedCount returns the number of writes that made a key present in
// this store (including keys copied in by migration). A Remove does not
// decrement it, so after delete/re-insert cycles it can exceed the
// number of claimed buckets.
func (s *Store) UsedCount() int64 { return s.usedCount.Load() }

// DelCount returns the number of successful Removes on this store. A
// later re-insert does not decrement it.
func (s *Store) DelCount() int64 { return s.delCount.Load() }

func (s *Store) IncUsed() { s.usedCount.Add(1) }
func (s *Store) DecUsed() { s.usedCount.Add(-1) }
func (s *Store) IncDel()  { s.delCount.Add(1) }
func (s *Store) DecDel()  { s.delCount.Add(-1) }

// NeedsMigration reports whether a writer observing this store should
// trigger a migration: used_count at or above the 75% load-factor
// threshold, or at least half of the used buckets tombstoned. The
// del_count/used_count ratio (rather than del_count/total-buckets) is
// the chosen reading of spec.md §9's open question — see DESIGN.md.
func (s *Store) NeedsMigration() bool {
	used := s.usedCount.Load()
	if used >= s.threshold {
		return true
	}
	del := s.delCount.Load()
	return used > 0 && del*2 >= used
}

// MigrationTarget returns the store this one is migrating into, or nil
// if no migration has been started.
func (s *Store) MigrationTarget() *Store {
	return s.target.Load()
}

// ClaimMigrationTarget installs target as this store's migration target
// via CAS from unset. Returns true iff this call won the race to start
// the migration; every other concurrent caller observes false and
// should read MigrationTarget to find the store the winner picked.
func (s *Store) ClaimMigrationTarget(target *Store) bool {
	return s.target.CompareAndSwap(nil, target)
}

// Buckets exposes the raw bucket array for migration and view walks.
func (s *Store) Buckets() []Bucket { return s.buckets }

// Acquire returns the bucket already holding hash, or claims the first
// empty slot on hash's probe sequence for it. The second return value
// is true iff the bucket already existed for this hash (as opposed to
// being freshly claimed by this call). ok is false if hash is the
// reserved zero value, or if the probe sequence wrapped the entire store
// without finding a match or an empty slot — which NeedsMigration's 75%
// threshold makes unreachable in practice, but callers must still
// check it.
func (s *Store) Acquire(hash Hash128) (b *Bucket, existed bool, ok bool) {
	if hash.IsZero() {
		return nil, false, false
	}
	size := s.Size()
	start := hash.index(s.mask)
	for i := uint64(0); i < size; i++ {
		idx := (start + i) & s.mask
		cur := &s.buckets[idx]
		if h, claimed := cur.Hash(); claimed {
			if h.Equal(hash) {
				return cur, true, true
			}
			continue
		}
		if cur.ClaimHash(hash) {
			return cur, false, true
		}
		// Lost the claim race for this slot; see what landed there
		// before continuing the probe.
		if h, claimed := cur.Hash(); claimed && h.Equal(hash) {
			return cur, true, true
		}
	}
	return nil, false, false
}

// Find locates the bucket already holding hash without claiming an
// empty slot, for read-only operations that must never create buckets.
// Linear probing with no hash-level deletion means the first unclaimed
// slot on the probe sequence proves hash was never inserted.
func (s *Store) Find(hash Hash128) (*Bucket, bool) {
	if hash.IsZero() {
		return nil, false
	}
	size := s.Size()
	start := hash.index(s.mask)
	for i := uint64(0); i < size; i++ {
		idx := (start + i) & s.mask
		cur := &s.buckets[idx]
		h, claimed := cur.Hash()
		if !claimed {
			return nil, false
		}
		if h.Equal(hash) {
			return cur, true
		}
	}
	return nil, false
}
