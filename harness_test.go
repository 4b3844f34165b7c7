package increquery

import "sync/atomic"

// countingQuery wraps a pure transform with an invocation counter, letting
// tests assert exactly how many times a query actually recomputed versus how
// many times it was merely validated or served from cache.
type countingQuery[K comparable, V any] struct {
	calls atomic.Int64
	fn    func(db Database, key K) V
}

func (c *countingQuery[K, V]) query(db Database, key K) V {
	c.calls.Add(1)
	return c.fn(db, key)
}

func (c *countingQuery[K, V]) callCount() int64 {
	return c.calls.Load()
}

// newLeafInput builds one Input[int] leaf cell named name/key, seeded to
// initial at the given durability. Tests mutate it directly via Input.Set
// and read it from a
// derived query via Input.Get, exercising the genuine Tracked-dependency
// validation path (as opposed to a no-input memo, which is treated as
// permanently valid once computed — see DESIGN.md's note on why leaf
// inputs are modeled with Input, not a zero-dependency Table).
func newLeafInput(db *inMemoryDatabase, name string, key string, initial int, durability Durability) *Input[int] {
	return NewInput[int](db, name, key, initial, durability)
}
