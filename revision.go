package increquery

import (
	"fmt"
	"sync/atomic"
)

// Revision is a monotonically increasing stamp. It advances only between
// batches of mutator writes; it is stable for the duration of any single
// Read or MaybeChangedSince call (the Runtime guarantees no mutator advances
// it while query goroutines are running).
type Revision uint64

// String implements fmt.Stringer for readable test failures and log lines.
func (r Revision) String() string {
	return fmt.Sprintf("R%d", uint64(r))
}

// RevisionZero is the revision a fresh database starts at, before any write
// has been committed.
const RevisionZero Revision = 0

// RevisionCounter is a monotonic, concurrency-safe revision generator. It is
// the reference implementation of the "revision counter" the Runtime
// contract exposes via CurrentRevision; production Runtimes may implement
// CurrentRevision however they like, as long as it is stable mid-query.
type RevisionCounter struct {
	current atomic.Uint64
}

// Current returns the current revision without advancing it.
func (c *RevisionCounter) Current() Revision {
	return Revision(c.current.Load())
}

// Advance bumps the revision by one and returns the new value. Callers must
// ensure no query is executing concurrently with Advance (the engine's
// contract is that mutations happen between query batches, never during
// one).
func (c *RevisionCounter) Advance() Revision {
	return Revision(c.current.Add(1))
}

// Durability bounds how often an input may change; higher durability inputs
// are assumed to change less often, which lets the slot short-circuit an
// input walk by comparing against the last revision any input of that
// durability (or higher) actually changed.
type Durability uint8

const (
	// Low is the default durability: the input may change at any time.
	Low Durability = iota
	// Medium durability inputs change less often than Low ones.
	Medium
	// High durability inputs are known not to change during the life of
	// the database (e.g. compile-time constants).
	High
)

// durabilityCount is the number of distinct durability levels; used to size
// the last-changed-revision table.
const durabilityCount = int(High) + 1

// String implements fmt.Stringer.
func (d Durability) String() string {
	switch d {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return fmt.Sprintf("Durability(%d)", uint8(d))
	}
}

// DurabilityTracker records, for each durability level, the most recent
// revision at which some input of at least that durability changed. It
// backs Runtime.LastChangedRevision.
type DurabilityTracker struct {
	// lastChanged[d] is the latest revision any durability-d-or-higher
	// input changed at. Guarded by its own atomics rather than a mutex
	// since updates are simple monotonic max operations.
	lastChanged [durabilityCount]atomic.Uint64
}

// NoteChange records that an input of the given durability changed at
// revision rev. A memo's own durability is the minimum across every
// dependency it read, so all of its dependencies have durability >= that
// minimum; last_changed_revision(d) must therefore answer "has any input of
// durability >= d changed", meaning a change at durability d bumps every
// level <= d (a High-durability change also counts against Medium and Low
// queries, since those queries' dependencies could include High ones; a
// Low-durability change never counts against a Medium or High memo, since
// by construction none of that memo's dependencies are Low).
func (t *DurabilityTracker) NoteChange(d Durability, rev Revision) {
	for level := 0; level <= int(d); level++ {
		for {
			cur := t.lastChanged[level].Load()
			if uint64(rev) <= cur {
				return
			}
			if t.lastChanged[level].CompareAndSwap(cur, uint64(rev)) {
				break
			}
		}
	}
}

// LastChanged returns the latest revision at which any input of durability
// >= d changed.
func (t *DurabilityTracker) LastChanged(d Durability) Revision {
	return Revision(t.lastChanged[int(d)].Load())
}
