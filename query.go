package increquery

// QueryFunction computes the value for key from scratch. It must be a pure
// function of key and whatever other queries it reads through db — all
// other inputs (clocks, randomness, disk, network) must be reported via
// db's untracked-read hook instead of read directly, or the slot cannot
// validate its result on a later revision.
//
// A QueryFunction that reads another Table should use ReadDependency rather
// than calling Table.Read directly: QueryFunction has no error return of its
// own, so the only way to thread a cycle discovered several reads deep back
// up to its originating Slot.Read call is to panic with the wrapped
// ErrCycle, which Slot.Read recovers and converts back into a normal error
// return at whichever level is waiting.
type QueryFunction[K comparable, V any] func(db Database, key K) V

// ReadDependency reads key from table on behalf of the query currently
// executing inside db. If the nested read detects a cycle, ReadDependency
// panics with the wrapped ErrCycle instead of returning it, per
// QueryFunction's documented convention; any other panic from deeper in the
// dependency chain passes through unchanged. Query functions should call
// this instead of table.Read directly.
func ReadDependency[K comparable, V any](db Database, table *Table[K, V], key K) V {
	v, err := table.Read(db, key)
	if err != nil {
		panic(err)
	}
	return v
}

// Database is the facade a QueryFunction receives to read other queries and
// to report untracked reads. A concrete Database implementation (see
// inmemory_runtime.go) wires this to a Runtime plus a set of Tables.
type Database interface {
	// Runtime returns the Runtime backing this database on the calling
	// goroutine's current execution.
	Runtime() Runtime

	// ReportUntrackedRead marks the currently executing query as
	// volatile. Equivalent to Runtime().ReportUntrackedRead() but
	// exposed directly on Database since query bodies hold a Database,
	// not a Runtime.
	ReportUntrackedRead()
}

// MemoizationPolicy controls how a Slot decides whether a freshly computed
// value actually represents a change, and at what durability to stamp a
// freshly computed memo.
type MemoizationPolicy[V any] struct {
	// Equal compares two computed values for the purpose of backdating:
	// if a recomputed value equals the previous one (per Equal) and
	// durability hasn't decreased, the slot backdates changed_at to the
	// old memo's changed_at instead of the current revision, so
	// downstream consumers don't spuriously recompute.
	Equal func(a, b V) bool

	// Durability is the durability newly computed memos for this query
	// are stamped with, absent any lower-durability tracked dependency
	// pulling it down. Most queries should use Low.
	Durability Durability

	// ShouldMemoizeValue reports whether a freshly computed value should
	// be retained in the slot. When it returns false the value is
	// delivered to the caller once and the slot keeps a valueless
	// Memoized memo (stamps and inputs only), so the next Read
	// recomputes (InputOnce-style queries that are cheap to recompute but
	// expensive to retain). Most queries should always return true.
	ShouldMemoizeValue func(key any, value V) bool
}

// DefaultPolicy returns a MemoizationPolicy using == for comparable V,
// Low durability, and unconditional memoization. Queries over
// non-comparable V types must build their own MemoizationPolicy with an
// explicit Equal.
func DefaultPolicy[V comparable]() MemoizationPolicy[V] {
	return MemoizationPolicy[V]{
		Equal:              func(a, b V) bool { return a == b },
		Durability:         Low,
		ShouldMemoizeValue: func(any, V) bool { return true },
	}
}

// VolatilePolicy returns a MemoizationPolicy suitable for queries that
// report an untracked read on every execution (so backdating never
// applies) — Equal is never consulted but must still be non-nil to satisfy
// Slot's contract, so it is filled with a function that always reports
// "changed".
func VolatilePolicy[V any]() MemoizationPolicy[V] {
	return MemoizationPolicy[V]{
		Equal:              func(V, V) bool { return false },
		Durability:         Low,
		ShouldMemoizeValue: func(any, V) bool { return true },
	}
}
