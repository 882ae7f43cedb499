package qtable_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/exp/rand"

	"quorum/pkg/qtable"
)

// TestChaosMixedOpsConvergeToConsistentState throws a random mix of
// Put/Add/Replace/Remove/Get at a small, deliberately collision-prone
// keyspace from many goroutines at once, then checks that once every
// goroutine has quiesced, the number of keys Get reports present equals
// the number of entries View returns — the two read paths (bounded walk
// vs full bucket-array scan) must never diverge on it.
func TestChaosMixedOpsConvergeToConsistentState(t *testing.T) {
	defer goleak.VerifyNone(t)

	tbl := newTable(t, qtable.Config{InitialSizeExp: 3, MaxPutRetries: 2}) // small & contentious

	const keyspace = 24
	const goroutines = 10
	const opsPerGoroutine = 3000

	keys := make([]string, keyspace)
	for i := range keys {
		keys[i] = fmt.Sprintf("chaos-%d", i)
	}

	var wg sync.WaitGroup
	for gi := 0; gi < goroutines; gi++ {
		gi := gi
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := tbl.Join()
			require.NoError(t, err)
			defer p.Leave()

			src := rand.NewSource(uint64(gi)*7919 + 13)
			rng := rand.New(src)

			for i := 0; i < opsPerGoroutine; i++ {
				key := keys[rng.Intn(keyspace)]
				h := hashKey(key)
				switch rng.Intn(5) {
				case 0:
					tbl.Put(p, h, i)
				case 1:
					tbl.Add(p, h, i)
				case 2:
					tbl.Replace(p, h, i)
				case 3:
					tbl.Remove(p, h)
				case 4:
					tbl.Get(p, h)
				}
			}
		}()
	}
	wg.Wait()

	p, err := tbl.Join()
	require.NoError(t, err)
	defer p.Leave()

	view := tbl.View(p)

	liveCount := 0
	for _, key := range keys {
		_, present := tbl.Get(p, hashKey(key))
		if present {
			liveCount++
		}
	}
	require.Equal(t, liveCount, len(view), "Get-visible key count must match View's entry count once quiesced")
}
