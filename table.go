package increquery

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Table is the directory of Slots for one query, keyed by K. It owns slot
// creation (exactly one Slot per key, created lazily on first read) and an
// optional capacity-bounded LRU eviction policy backed by
// hashicorp/golang-lru, grounded on the same library the rest of the
// retrieval pack already depends on for bounded in-memory caches.
//
// Table itself never inspects V; eviction, sweeping, and validation are all
// delegated to the Slot, so Table's job is purely bookkeeping: which slots
// exist, and which of them the LRU considers least recently touched.
type Table[K comparable, V any] struct {
	queryName string
	fn        QueryFunction[K, V]
	policy    MemoizationPolicy[V]

	mu       sync.Mutex
	slots    map[K]*Slot[K, V]
	lru      *lru.Cache[K, *Slot[K, V]]
	disposer func(V)
	sink     EventSink
}

// NewTable constructs an empty Table with no LRU bound (unlimited
// retention, equivalent to SetLRUCapacity(0)).
func NewTable[K comparable, V any](queryName string, fn QueryFunction[K, V], policy MemoizationPolicy[V]) *Table[K, V] {
	return &Table[K, V]{
		queryName: queryName,
		fn:        fn,
		policy:    policy,
		slots:     make(map[K]*Slot[K, V]),
	}
}

// SetDisposer installs a hook invoked with a slot's value whenever that
// slot's value is discarded by LRU eviction or DropAll. Sweep does not
// invoke it for the values it discards. It must be
// called before the table sees any reads; changing it concurrently with
// Read is not safe, the same way hashicorp/golang-lru's constructor-time
// eviction callback is fixed for the cache's lifetime.
func (t *Table[K, V]) SetDisposer(disposer func(V)) {
	t.disposer = disposer
}

// SetEventSink installs sink as the destination for this table's own
// observability events (currently just EventDidEvict, emitted by background
// operations — LRU eviction, Sweep, DropAll — that have no Runtime of their
// own to report through). A nil sink disables reporting.
func (t *Table[K, V]) SetEventSink(sink EventSink) {
	t.sink = sink
}

func (t *Table[K, V]) reportEvict(key K) {
	if t.sink == nil {
		return
	}
	t.sink.SalsaEvent(Event{Kind: EventDidEvict, DatabaseKey: DatabaseKey{Query: t.queryName, Key: key}})
}

// SetLRUCapacity bounds the number of distinct memoized slots this table
// retains. A capacity of 0 disables the LRU entirely: slots are created and
// memoized without limit and nothing is ever evicted by this mechanism
// (hashicorp/golang-lru does not support a zero-size cache, so Table simply
// never constructs one). Shrinking the capacity does not immediately evict
// anything beyond what the new cache's construction already drops; the
// bound takes full effect as new keys are touched.
func (t *Table[K, V]) SetLRUCapacity(capacity int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if capacity <= 0 {
		t.lru = nil
		return nil
	}

	cache, err := lru.NewWithEvict[K, *Slot[K, V]](capacity, func(key K, slot *Slot[K, V]) {
		if slot.EvictNotify(t.disposer) {
			t.reportEvict(key)
		}
	})
	if err != nil {
		return err
	}
	t.lru = cache
	return nil
}

// getOrCreateSlot returns the slot for key, creating it on first use.
func (t *Table[K, V]) getOrCreateSlot(key K) *Slot[K, V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot, ok := t.slots[key]; ok {
		return slot
	}
	slot := NewSlot[K, V](t.queryName, key, t.fn, t.policy)
	t.slots[key] = slot
	return slot
}

// touch registers key as recently used with the LRU, possibly triggering
// eviction of whatever key the cache now considers least recently used.
func (t *Table[K, V]) touch(key K, slot *Slot[K, V]) {
	t.mu.Lock()
	cache := t.lru
	t.mu.Unlock()
	if cache != nil {
		cache.Add(key, slot)
	}
}

// Read resolves key's up-to-date value, creating the slot on first use and
// marking it as recently touched for LRU purposes.
func (t *Table[K, V]) Read(db Database, key K) (V, error) {
	slot := t.getOrCreateSlot(key)
	v, err := slot.Read(db)
	t.touch(key, slot)
	return v, err
}

// AsDependency returns the Dependency view of the slot for key, creating it
// if necessary. Used by query functions that want to record a read without
// immediately forcing computation through Table.Read's full path (rare;
// most callers should just use Read).
func (t *Table[K, V]) AsDependency(key K) Dependency {
	return t.getOrCreateSlot(key)
}

// Len returns the number of distinct keys this table has ever created a
// slot for, memoized or not.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// QueryName returns the query name every slot in this table shares as the
// Query field of its DatabaseKey.
func (t *Table[K, V]) QueryName() string {
	return t.queryName
}

// Sweep applies strategy to every slot currently in the table.
func (t *Table[K, V]) Sweep(strategy SweepStrategy, currentRevision Revision) {
	t.mu.Lock()
	keys := make([]K, 0, len(t.slots))
	slots := make([]*Slot[K, V], 0, len(t.slots))
	for k, s := range t.slots {
		keys = append(keys, k)
		slots = append(slots, s)
	}
	t.mu.Unlock()

	for i, s := range slots {
		if s.Sweep(strategy, currentRevision) {
			t.reportEvict(keys[i])
		}
	}
}

// DropAll discards every slot's memo unconditionally (bypassing the
// volatile-input pin) and invokes the table's disposer for each one that
// held a value, then forgets every slot entirely. It is the Table-level
// equivalent of dropping the whole database.
func (t *Table[K, V]) DropAll() {
	t.mu.Lock()
	keys := make([]K, 0, len(t.slots))
	slots := make([]*Slot[K, V], 0, len(t.slots))
	for k, s := range t.slots {
		keys = append(keys, k)
		slots = append(slots, s)
	}
	t.slots = make(map[K]*Slot[K, V])
	t.lru = nil
	t.mu.Unlock()

	for i, s := range slots {
		if s.ClearForTeardown(t.disposer) {
			t.reportEvict(keys[i])
		}
	}
}
