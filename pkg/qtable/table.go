package qtable

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"quorum/internal/qlog"
	"quorum/internal/qmetrics"
	"quorum/pkg/bucket"
	"quorum/pkg/epoch"
	"quorum/pkg/table"
)

// Table implements table.SnapshotableContainer: the wait-free
// linearizable variant, the one member of spec.md's table family this
// library builds (see pkg/table's doc comment for the others it leaves
// out).
var _ table.SnapshotableContainer = (*Table)(nil)

// Table is one hash table instance: an EBR manager shared by every
// participant that touches it, and the currently active bucket.Store,
// swung atomically from old to new as migrations complete. A Table never
// holds more than one Store reachable from the active pointer at a time
// except during the in-flight window of a migration, when the old store
// is still reachable through retirement bookkeeping until every reader
// that might still be using it has left.
type Table struct {
	mgr    *epoch.Manager
	active atomic.Pointer[bucket.Store]

	cfg     Config
	log     zerolog.Logger
	metrics *qmetrics.Collector
}

// Options configures a new Table.
type Options struct {
	Config      Config
	EpochConfig epoch.Config
	Logger      *zerolog.Logger
	Metrics     *qmetrics.Collector
}

// New creates a Table with a freshly allocated, empty initial store.
func New(opts Options) (*Table, error) {
	cfg := opts.Config
	if cfg.InitialSizeExp == 0 {
		cfg = DefaultConfig()
	}
	if cfg.InitialSizeExp > 62 {
		return nil, ErrInvalidConfig
	}

	mgr, err := epoch.New(epoch.Options{
		Config:  opts.EpochConfig,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	logger := qlog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	t := &Table{
		mgr:     mgr,
		cfg:     cfg,
		log:     logger,
		metrics: opts.Metrics,
	}
	t.active.Store(bucket.NewStore(mgr, cfg.sizeExpOrDefault()))
	return t, nil
}

// Join registers a new participant for this table's EBR manager. Callers
// keep the returned *epoch.Participant for the lifetime of the goroutine
// that will call Get/Put/Add/Replace/Remove/Len/View, and call Leave
// when that goroutine is done with the table.
func (t *Table) Join() (*epoch.Participant, error) {
	return t.mgr.Join()
}

// Destroy releases t's resources. The caller must ensure no participant
// has an in-flight operation and every joined participant has already
// called Leave — Destroy neither waits for nor verifies either
// condition (spec.md §6's "no in-flight ops" precondition). In a
// garbage-collected runtime this has no reclamation work of its own to
// do; it exists so callers have a symmetric lifecycle method and a log
// line marking the table's end of life.
func (t *Table) Destroy() {
	t.log.Info().Msg("qtable: destroyed")
}

// Len returns the table's approximate live-key count: used_count minus
// del_count on the currently active store. Both counters are cumulative
// (a re-insert after a delete bumps used_count again rather than
// decrementing del_count), so their difference is the live-key count
// once writes have quiesced; it is approximate only while writes are in
// flight, since each counter is bumped after its write's CAS lands.
func (t *Table) Len() int64 {
	s := t.active.Load()
	n := s.UsedCount() - s.DelCount()
	if n < 0 {
		return 0
	}
	return n
}

// Get returns the value associated with hash, and whether it is present,
// as of the calling participant's linearization point.
func (t *Table) Get(p *epoch.Participant, hash bucket.Hash128) (any, bool) {
	e := p.BeginLinearizedOp()
	defer p.EndOp()

	s := t.active.Load()
	b, found := s.Find(hash)
	if !found {
		return nil, false
	}
	rec := t.currentRecord(b, e)
	if rec == nil {
		return nil, false
	}
	return rec.Value, true
}

// Put unconditionally installs value for hash, returning the value it
// displaced (if any).
func (t *Table) Put(p *epoch.Participant, hash bucket.Hash128, value any) (any, bool) {
	return t.write(p, hash, value, modeUpsert)
}

// Add installs value for hash only if hash is not already present. If
// hash is already present, Add is a no-op and returns the existing
// value with ok=true.
func (t *Table) Add(p *epoch.Participant, hash bucket.Hash128, value any) (any, bool) {
	return t.write(p, hash, value, modeInsertOnly)
}

// Replace installs value for hash only if hash is already present. If
// hash is absent, Replace is a no-op and returns (nil, false).
func (t *Table) Replace(p *epoch.Participant, hash bucket.Hash128, value any) (any, bool) {
	return t.write(p, hash, value, modeUpdateOnly)
}

// Remove tombstones hash, returning the value it removed (if any).
func (t *Table) Remove(p *epoch.Participant, hash bucket.Hash128) (any, bool) {
	return t.write(p, hash, nil, modeDelete)
}

type writeMode int

const (
	modeUpsert writeMode = iota
	modeInsertOnly
	modeUpdateOnly
	modeDelete
)

// write is the shared skeleton for Put/Add/Replace/Remove: resolve the
// active store (helping along any migration already in progress, or
// starting one if the store is over threshold), acquire the bucket, and
// race a new record onto its history via CAS. A lost race either retries
// with a fresh head or, past cfg.MaxPutRetries, combines onto the
// winner's result — correct because a CAS loser's write never became
// observable, so it is always sound to say it linearized immediately
// before the winner instead.
func (t *Table) write(p *epoch.Participant, hash bucket.Hash128, value any, mode writeMode) (any, bool) {
	p.BeginBasicOp()
	defer p.EndOp()

	retries := 0
	for {
		s := t.storeForWrite(p)

		var b *bucket.Bucket
		if mode == modeDelete || mode == modeUpdateOnly {
			// Remove and Replace only ever act on an already-claimed
			// bucket; finding none means the key is absent, and neither
			// operation claims a slot just to discover that.
			found, ok := s.Find(hash)
			if !ok {
				return nil, false
			}
			b = found
		} else {
			acquired, _, ok := s.Acquire(hash)
			if !ok {
				// Linear probe wrapped the whole store without finding a
				// slot; the 75% load-factor threshold is meant to make
				// this unreachable, but force a migration and retry
				// rather than fail the caller.
				t.triggerMigration(p, s)
				continue
			}
			b = acquired
		}

		// Single read of the atomic head: cur/curUsed must describe the
		// exact same state the CAS below races against, or a writer that
		// wins its CAS against a fresher head than the one topLiveRecord
		// saw would report stale bookkeeping for a real write.
		head := b.Head()
		cur, curUsed, _ := topLiveRecordFrom(t.mgr, head)

		switch mode {
		case modeInsertOnly:
			if curUsed {
				return cur.Value, true
			}
		case modeUpdateOnly:
			if !curUsed {
				return nil, false
			}
		case modeDelete:
			if !curUsed {
				return nil, false
			}
		}

		// A migration out of s that started after storeForWrite returned
		// may already have passed this bucket, so a record installed here
		// could miss the copy: go back and write to the new store instead.
		if s.MigrationTarget() != nil {
			continue
		}

		flags := bucket.Used
		var newValue any = value
		if mode == modeDelete {
			flags = bucket.Deleted
			newValue = nil
		}

		rec := bucket.NewRecord(flags, newValue, head)

		if b.CASHead(head, rec) {
			t.mgr.CommitWrite(&rec.Header)
			t.accountWrite(s, curUsed, mode)
			if curUsed {
				return cur.Value, true
			}
			return nil, false
		}

		// Lost the race: some other writer already replaced head with a
		// record whose Prev is head itself — the very state cur was just
		// computed from. That writer's displaced value is therefore
		// identical to what ours would have been, so past
		// MaxPutRetries we stop spinning and combine: treat our write as
		// having linearized immediately before theirs and return exactly
		// what a winning CAS against this same head would have, with no
		// counter update (nothing of ours was installed) and no commit
		// (the record was never observable to anyone).
		p.RetireUnused(&rec.Header)
		if s.MigrationTarget() != nil {
			// The winner may be a migration marker rather than a writer;
			// never combine onto it, retry on the new store instead.
			continue
		}
		retries++
		if retries <= t.cfg.maxPutRetriesOrDefault() {
			continue
		}
		if curUsed {
			return cur.Value, true
		}
		return nil, false
	}
}

// accountWrite updates the active store's approximate used/tombstone
// counters following spec.md §4.2: used_count increments whenever a
// write transitions a bucket into Used from anything else; del_count
// increments on every successful Remove, regardless of prior state.
func (t *Table) accountWrite(s *bucket.Store, wasUsed bool, mode writeMode) {
	if mode == modeDelete {
		s.IncDel()
		t.metrics.SetTombstones(float64(s.DelCount()))
		return
	}
	if !wasUsed {
		s.IncUsed()
		t.metrics.SetUsed(float64(s.UsedCount()))
	}
}

// storeForWrite returns the store a write should act on: if the active
// store already has a migration in progress, help finish it and operate
// on its target instead; if the active store has crossed its migration
// threshold, start one. Either way the caller always ends up writing to
// a store that was not, at the moment this returned, already fully
// migrated out from under it.
func (t *Table) storeForWrite(p *epoch.Participant) *bucket.Store {
	for {
		s := t.active.Load()
		if target := s.MigrationTarget(); target != nil {
			t.helpMigrate(p, s, target)
			continue
		}
		if s.NeedsMigration() {
			t.triggerMigration(p, s)
			continue
		}
		return s
	}
}

// triggerMigration starts a migration out of s if nobody has yet, then
// helps it to completion.
func (t *Table) triggerMigration(p *epoch.Participant, s *bucket.Store) {
	target := s.MigrationTarget()
	if target == nil {
		newStore := bucket.NewStore(t.mgr, t.nextSizeExp(s))
		if s.ClaimMigrationTarget(newStore) {
			target = newStore
			t.log.Info().
				Uint64("old_size", s.Size()).
				Uint64("new_size", newStore.Size()).
				Msg("qtable: migration started")
		} else {
			target = s.MigrationTarget()
		}
	}
	t.helpMigrate(p, s, target)
}

// nextSizeExp picks the target size for a migration out of s: the same
// size again if at least half of its used buckets are tombstoned (a
// compacting rehash), or double otherwise (a growing rehash). This is
// the chosen reading of spec.md §9's open question on how del_count
// ratio should be measured; see DESIGN.md.
func (t *Table) nextSizeExp(s *bucket.Store) uint {
	curExp := uint(bitLen64(s.Mask()))
	used := s.UsedCount()
	del := s.DelCount()
	if used > 0 && del*2 >= used {
		return curExp
	}
	return curExp + 1
}

func bitLen64(mask uint64) int {
	n := 0
	for mask != 0 {
		n++
		mask >>= 1
	}
	return n
}

// currentRecord walks b's history from the head, help-committing any
// record it finds mid-commit, and returns the first record visible at
// or before epoch e: the nearest record, newest-first, whose write_epoch
// is non-future. A Deleted record there means absent (nil); a Moving or
// Moved marker carries no data and is skipped in favor of the real
// record beneath it.
func (t *Table) currentRecord(b *bucket.Bucket, e uint64) *bucket.Record {
	for r := b.Head(); r != nil; r = r.Prev {
		if r.WriteEpoch() == 0 {
			t.mgr.HelpCommit(&r.Header)
		}
		if r.WriteEpoch() > e {
			continue
		}
		if r.Flags.Has(bucket.Deleted) {
			return nil
		}
		if r.Flags.Has(bucket.Used) {
			return r
		}
	}
	return nil
}

// topLiveRecord is currentRecord's writer-side counterpart: "current" as
// of right now (no epoch bound), since a writer always acts on the
// latest state rather than a pinned snapshot.
func (t *Table) topLiveRecord(b *bucket.Bucket) (rec *bucket.Record, isUsed bool, isDeleted bool) {
	return topLiveRecordFrom(t.mgr, b.Head())
}

// topLiveRecordFrom walks a record chain starting at head, the same
// logic topLiveRecord applies starting from a fresh b.Head() read. It
// takes head explicitly so a caller that must act on the exact head it
// also CASes against (write, below) never derives cur/curUsed from a
// separate, possibly staler read of the same atomic pointer.
func topLiveRecordFrom(mgr *epoch.Manager, head *bucket.Record) (rec *bucket.Record, isUsed bool, isDeleted bool) {
	for r := head; r != nil; r = r.Prev {
		if r.WriteEpoch() == 0 {
			mgr.HelpCommit(&r.Header)
		}
		if r.Flags.Has(bucket.Used) {
			return r, true, false
		}
		if r.Flags.Has(bucket.Deleted) {
			return r, false, true
		}
	}
	return nil, false, false
}
