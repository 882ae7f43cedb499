package bucket_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"quorum/pkg/bucket"
	"quorum/pkg/epoch"
)

func newManager(t *testing.T) *epoch.Manager {
	t.Helper()
	m, err := epoch.New(epoch.Options{Config: epoch.Config{MaxParticipants: 16, ScanEvery: 2}})
	require.NoError(t, err)
	return m
}

func TestAcquireClaimsThenReusesBucket(t *testing.T) {
	mgr := newManager(t)
	s := bucket.NewStore(mgr, 4) // 16 buckets

	h := bucket.Hash128{Hi: 1, Lo: 2}
	b1, existed, ok := s.Acquire(h)
	require.True(t, ok)
	require.False(t, existed)

	b2, existed, ok := s.Acquire(h)
	require.True(t, ok)
	require.True(t, existed)
	require.Same(t, b1, b2)
}

func TestAcquireProbesPastCollision(t *testing.T) {
	mgr := newManager(t)
	s := bucket.NewStore(mgr, 2) // 4 buckets, mask 3

	// Two distinct hashes that collide on the low bits.
	a := bucket.Hash128{Hi: 1, Lo: 0}
	c := bucket.Hash128{Hi: 2, Lo: 4} // low bits & 3 == 0, same natural slot as a

	ba, _, ok := s.Acquire(a)
	require.True(t, ok)
	bc, _, ok := s.Acquire(c)
	require.True(t, ok)
	require.NotSame(t, ba, bc)

	// Find must still locate both without creating new buckets.
	found, ok := s.Find(a)
	require.True(t, ok)
	require.Same(t, ba, found)

	found, ok = s.Find(c)
	require.True(t, ok)
	require.Same(t, bc, found)
}

func TestFindDoesNotClaim(t *testing.T) {
	mgr := newManager(t)
	s := bucket.NewStore(mgr, 3)

	h := bucket.Hash128{Hi: 9, Lo: 9}
	_, ok := s.Find(h)
	require.False(t, ok)

	_, existed := s.Find(h)
	require.False(t, existed)
}

func TestNeedsMigrationOnLoadFactor(t *testing.T) {
	mgr := newManager(t)
	s := bucket.NewStore(mgr, 2) // 4 buckets, threshold = 3

	require.False(t, s.NeedsMigration())
	s.IncUsed()
	s.IncUsed()
	require.False(t, s.NeedsMigration())
	s.IncUsed()
	require.True(t, s.NeedsMigration())
}

func TestNeedsMigrationOnTombstoneRatio(t *testing.T) {
	mgr := newManager(t)
	s := bucket.NewStore(mgr, 4) // 16 buckets, threshold = 12

	s.IncUsed()
	s.IncUsed()
	s.IncDel()
	require.True(t, s.NeedsMigration(), "del_count/used_count >= 1/2 must trigger migration")
}

func TestClaimMigrationTargetIsWriteOnce(t *testing.T) {
	mgr := newManager(t)
	s := bucket.NewStore(mgr, 2)
	target1 := bucket.NewStore(mgr, 3)
	target2 := bucket.NewStore(mgr, 3)

	require.True(t, s.ClaimMigrationTarget(target1))
	require.False(t, s.ClaimMigrationTarget(target2))
	require.Same(t, target1, s.MigrationTarget())
}

func TestRecordHelpCommitIsIdempotent(t *testing.T) {
	mgr := newManager(t)
	r := bucket.NewRecord(bucket.Used, "hello", nil)

	e1 := mgr.HelpCommit(&r.Header)
	require.NotZero(t, e1)
	require.True(t, r.IsLive(e1))

	e2 := mgr.HelpCommit(&r.Header)
	require.Equal(t, e1, e2)
}

func TestRecordNotLiveWhenDeleted(t *testing.T) {
	mgr := newManager(t)
	r := bucket.NewRecord(bucket.Deleted, nil, nil)
	e := mgr.CommitWrite(&r.Header)

	require.False(t, r.IsLive(e))
	require.True(t, r.IsTombstone(e))
}

func TestRecordFutureWriteIsNotVisible(t *testing.T) {
	mgr := newManager(t)
	r := bucket.NewRecord(bucket.Used, 1, nil)
	e := mgr.CommitWrite(&r.Header)

	require.False(t, r.IsLive(e-1))
	require.True(t, r.IsLive(e))
}
