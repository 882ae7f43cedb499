package qtable

import (
	"sort"

	"quorum/pkg/bucket"
	"quorum/pkg/epoch"
	"quorum/pkg/table"
)

// Entry is one live key's value in a View (the key itself is not
// included), tagged with the ordering
// keys spec.md §4.5 defines: create_epoch primary, write_epoch and
// bucket index as tie-breakers. Aliased to table.Entry so Table
// satisfies table.SnapshotableContainer without a conversion step.
type Entry = table.Entry

// View returns every live key in the table as of the calling
// participant's linearization point, ordered by create_epoch — the
// write_epoch of the insertion that first made each key present since
// its latest delete, if any — tie-broken by write_epoch, then bucket
// index. spec.md §4.3 step 2 describes walking back to the record whose
// own value is current; this implementation separates that from
// create_epoch resolution, which continues walking further back through
// the same presence run to find its start, because testable property 4
// (view consistency equals replaying every committed write) and the
// insert/delete/insert scenario in §8 (create_epoch is the *last*
// insert's epoch, since a delete resets the run) cannot both hold if
// create_epoch and value are read off the same record whenever a key
// has been updated more than once without an intervening delete.
func (t *Table) View(p *epoch.Participant) []Entry {
	e := p.BeginLinearizedOp()
	defer p.EndOp()

	s := t.active.Load()
	buckets := s.Buckets()
	entries := make([]Entry, 0, s.UsedCount())
	for i := range buckets {
		b := &buckets[i]
		if _, claimed := b.Hash(); !claimed {
			continue
		}
		value, createEpoch, writeEpoch, present := t.viewBucket(b, e)
		if !present {
			continue
		}
		entries = append(entries, Entry{
			Value:       value,
			CreateEpoch: createEpoch,
			WriteEpoch:  writeEpoch,
			BucketIndex: i,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreateEpoch != entries[j].CreateEpoch {
			return entries[i].CreateEpoch < entries[j].CreateEpoch
		}
		if entries[i].WriteEpoch != entries[j].WriteEpoch {
			return entries[i].WriteEpoch < entries[j].WriteEpoch
		}
		return entries[i].BucketIndex < entries[j].BucketIndex
	})
	return entries
}

// viewBucket resolves b's state at epoch e: the current value (the same
// record currentRecord would find), and the create_epoch of the record
// that started the current presence run — the oldest contiguous USED
// record reachable from the current one without crossing a Deleted
// record visible at or before e.
func (t *Table) viewBucket(b *bucket.Bucket, e uint64) (value any, createEpoch, writeEpoch uint64, present bool) {
	cur := t.currentRecord(b, e)
	if cur == nil {
		return nil, 0, 0, false
	}
	value = cur.Value
	writeEpoch = cur.WriteEpoch()

	runStart := cur
	for r := cur.Prev; r != nil; r = r.Prev {
		if r.WriteEpoch() == 0 {
			t.mgr.HelpCommit(&r.Header)
		}
		if r.WriteEpoch() > e {
			continue
		}
		if r.Flags.Has(bucket.Deleted) {
			break
		}
		if r.Flags.Has(bucket.Used) {
			runStart = r
		}
	}

	createEpoch = runStart.CreateEpoch()
	if createEpoch == 0 {
		createEpoch = runStart.HelpCreateEpoch(runStart.WriteEpoch())
	}
	return value, createEpoch, writeEpoch, true
}
