package increquery

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCreatesOneSlotPerKey(t *testing.T) {
	db := NewDatabase()
	table := NewTable[int, int]("sq", func(d Database, key int) int { return key * key }, DefaultPolicy[int]())

	rt := db.NewRuntime()
	for _, k := range []int{1, 2, 3, 2, 1} {
		_, err := table.Read(rt, k)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, "sq", table.QueryName())
}

// TestLRUCapsLiveResourcePresence exercises the concrete LRU scenario: with
// capacity 32, touching 128 keys twice settles on exactly 32 live values;
// raising capacity to 64 and touching all 128 keys again settles on 64;
// disabling the LRU (capacity 0) and touching all 128 again brings every key
// back to a live value; dropping the table disposes everything.
func TestLRUCapsLiveResourcePresence(t *testing.T) {
	db := NewDatabase()
	var live atomic.Int64
	table := NewTable[int, int]("resource", func(d Database, key int) int {
		live.Add(1)
		return key
	}, DefaultPolicy[int]())
	table.SetDisposer(func(int) { live.Add(-1) })

	require.NoError(t, table.SetLRUCapacity(32))

	rt := db.NewRuntime()
	readAll := func() {
		for i := 0; i < 128; i++ {
			_, err := table.Read(rt, i)
			require.NoError(t, err)
		}
	}
	readAll()
	readAll()
	assert.EqualValues(t, 32, live.Load())

	require.NoError(t, table.SetLRUCapacity(64))
	readAll()
	assert.EqualValues(t, 64, live.Load())

	require.NoError(t, table.SetLRUCapacity(0))
	readAll()
	assert.EqualValues(t, 128, live.Load())

	table.DropAll()
	assert.EqualValues(t, 0, live.Load())
}

// TestVolatileQueriesArePinnedAgainstLRU mirrors the LRU suite's volatile
// scenario: 384 distinct keys, each backed by a query that reports an
// untracked read and returns a strictly increasing counter. Even with an LRU
// capacity of 32 (far below 384), no volatile memo is ever evicted within the
// revision, so every key's first-read value is preserved for the rest of the
// revision.
func TestVolatileQueriesArePinnedAgainstLRU(t *testing.T) {
	db := NewDatabase()
	var counter atomic.Int64
	table := NewTable[int, int]("volatile-lru", func(d Database, key int) int {
		d.ReportUntrackedRead()
		return int(counter.Add(1) - 1)
	}, VolatilePolicy[int]())
	require.NoError(t, table.SetLRUCapacity(32))

	rt := db.NewRuntime()
	observed := make([]int, 0, 384)
	for pass := 0; pass < 3; pass++ {
		for key := 0; key < 128; key++ {
			k := pass*128 + key
			v, err := table.Read(rt, k)
			require.NoError(t, err)
			observed = append(observed, v)
		}
	}
	want := make([]int, 384)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, observed)

	// Re-reading an early key within the same revision must return its
	// original cached value unchanged: the LRU never evicted it.
	v, err := table.Read(rt, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestSweepOutdatedKeepsCurrentMemos(t *testing.T) {
	db := NewDatabase()
	var calls countingQuery[string, int]
	calls.fn = func(d Database, key string) int { return 1 }
	table := NewTable[string, int]("sweep-outdated", calls.query, DefaultPolicy[int]())

	rt := db.NewRuntime()
	_, err := table.Read(rt, "a")
	require.NoError(t, err)

	strat, err := NewSweepStrategy(DiscardOutdated, DiscardEverything)
	require.NoError(t, err)
	table.Sweep(strat, db.CurrentRevision())

	v, err := table.Read(rt, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.EqualValues(t, 1, calls.callCount(), "a current memo must survive DiscardOutdated")
}

func TestSweepValuesOnlyKeepsStampsVersusEverything(t *testing.T) {
	db := NewDatabase()
	policy := DefaultPolicy[int]()
	policy.Durability = High
	table := NewTable[string, int]("sweep-stamps", func(d Database, key string) int { return 42 }, policy)

	rt := db.NewRuntime()
	_, err := table.Read(rt, "a")
	require.NoError(t, err)

	slot := table.getOrCreateSlot("a")

	stratValues, err := NewSweepStrategy(DiscardAlways, DiscardValuesOnly)
	require.NoError(t, err)
	slot.Sweep(stratValues, db.CurrentRevision())

	key, _, hasValue, present := slot.DebugEntry()
	assert.Equal(t, DatabaseKey{Query: "sweep-stamps", Key: "a"}, key)
	assert.True(t, present, "DiscardValuesOnly keeps the slot Memoized")
	assert.False(t, hasValue, "DiscardValuesOnly clears the cached value")
	assert.Equal(t, High, slot.Durability(rt), "stamps survive a values-only sweep")

	stratAll, err := NewSweepStrategy(DiscardAlways, DiscardEverything)
	require.NoError(t, err)
	slot.Sweep(stratAll, db.CurrentRevision())

	_, _, _, present2 := slot.DebugEntry()
	assert.False(t, present2, "DiscardEverything resets the slot to NotComputed")
	assert.Equal(t, Low, slot.Durability(rt), "nothing left to report once NotComputed")
}

func TestSweepProtectsCurrentUntrackedMemoEvenUnderDiscardAlways(t *testing.T) {
	db := NewDatabase()
	var calls countingQuery[string, int]
	calls.fn = func(d Database, key string) int {
		d.ReportUntrackedRead()
		return int(calls.callCount())
	}
	table := NewTable[string, int]("sweep-volatile", calls.query, VolatilePolicy[int]())

	rt := db.NewRuntime()
	_, err := table.Read(rt, "a")
	require.NoError(t, err)

	strat, err := NewSweepStrategy(DiscardAlways, DiscardEverything)
	require.NoError(t, err)
	table.Sweep(strat, db.CurrentRevision())

	v, err := table.Read(rt, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.EqualValues(t, 1, calls.callCount(), "a current untracked memo must never be swept, even under DiscardAlways")
}

func TestDropAllDisposesEveryValueOnce(t *testing.T) {
	db := NewDatabase()
	var disposed []int
	table := NewTable[int, int]("drop", func(d Database, key int) int { return key }, DefaultPolicy[int]())
	table.SetDisposer(func(v int) { disposed = append(disposed, v) })

	rt := db.NewRuntime()
	for i := 0; i < 5; i++ {
		_, err := table.Read(rt, i)
		require.NoError(t, err)
	}

	table.DropAll()
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, disposed)
	assert.Equal(t, 0, table.Len())
}
