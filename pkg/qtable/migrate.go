package qtable

import (
	"quorum/pkg/bucket"
	"quorum/pkg/epoch"
)

// helpMigrate drives old's migration into target to completion: every
// bucket is visited exactly to idempotency (concurrent helpers racing on
// the same bucket converge rather than duplicate work), and once every
// bucket has been visited the caller that wins the active-pointer swing
// retires the old store. Any number of participants may call this
// concurrently for the same (old, target) pair; none of it depends on
// which caller "owns" the migration.
func (t *Table) helpMigrate(p *epoch.Participant, old, target *bucket.Store) {
	buckets := old.Buckets()
	for i := range buckets {
		t.migrateBucket(old, target, &buckets[i])
	}

	if t.active.CompareAndSwap(old, target) {
		t.metrics.IncMigrations()
		t.log.Info().
			Uint64("old_size", old.Size()).
			Uint64("new_size", target.Size()).
			Msg("qtable: migration complete, store swung")
		p.Retire(&old.Header)
	}
}

// migrateBucket moves one bucket's live state across, per spec.md §4.4:
// mark MOVING, copy the current USED record (if any) into target under
// the same hash, then mark MOVED. Both marker pushes are idempotent —
// safe to call repeatedly from multiple concurrent helpers — so a helper
// that arrives after another has already finished this bucket does
// nothing.
func (t *Table) migrateBucket(old, target *bucket.Store, b *bucket.Bucket) {
	hash, claimed := b.Hash()
	if !claimed {
		if t.cfg.EagerMoveEmpty {
			t.pushMarker(b, bucket.Moved)
		}
		return
	}

	t.pushMarker(b, bucket.Moving)

	if rec, isUsed, _ := t.topLiveRecord(b); isUsed {
		// The copy takes rec's create_epoch, so first resolve it from the
		// oldest Used record of rec's presence run, as View does.
		runStart := rec
		for r := rec.Prev; r != nil && !r.Flags.Has(bucket.Deleted); r = r.Prev {
			if r.Flags.Has(bucket.Used) {
				runStart = r
			}
		}
		rec.HelpCreateEpoch(runStart.HelpCreateEpoch(runStart.WriteEpoch()))
		t.copyInto(target, hash, rec)
	}

	t.pushMarker(b, bucket.Moved)
}

// pushMarker installs a Moving or Moved marker record atop b's history
// via CAS, unless the top already carries at least as strong a marker —
// Moved implies Moving is also redundant, so marking Moving is skipped
// once a bucket is already Moved.
func (t *Table) pushMarker(b *bucket.Bucket, flag bucket.Flags) {
	skipIf := flag
	if flag == bucket.Moving {
		skipIf = bucket.Moving | bucket.Moved
	}
	for {
		head := b.Head()
		if head != nil && head.Flags.Has(skipIf) {
			return
		}
		marker := bucket.NewRecord(flag, nil, head)
		if b.CASHead(head, marker) {
			t.mgr.CommitWrite(&marker.Header)
			return
		}
	}
}

// copyInto re-hosts orig's value into target under hash, preserving
// orig's original create_epoch and write_epoch (spec.md §4.4: a
// migrated record is a re-hosting, not a new linearization). Idempotent
// against concurrent helpers racing to copy the same bucket: the copy is
// installed only into a still-empty target bucket, so a non-empty one
// (another helper's copy, or a write made after the store swung) makes
// this call a no-op.
func (t *Table) copyInto(target *bucket.Store, hash bucket.Hash128, orig *bucket.Record) {
	b, _, ok := target.Acquire(hash)
	if !ok {
		// Should be unreachable: nextSizeExp always grows (or rehashes
		// at the same size to compact tombstones, never to shrink below
		// what old already holds live), so target always has room for
		// everything old's migration could possibly copy into it.
		t.log.Error().Msg("qtable: migration target store has no room for a live key")
		return
	}

	copyRec := bucket.CopyForMigration(orig, nil)
	if b.CASHead(nil, copyRec) {
		target.IncUsed()
		t.metrics.SetUsed(float64(target.UsedCount()))
	}
}
