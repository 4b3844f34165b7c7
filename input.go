package increquery

import "sync"

// Input is a leaf, externally-settable Dependency: the smallest piece of
// ambient infrastructure a derived Slot needs in order to have something
// real to read. It is deliberately not a Slot — there is no InProgress
// state, no validation walk, no QueryFunction to execute — Set stamps a
// fresh changedAt directly against the owning database's revision clock,
// bypassing the derived-query memo machinery entirely rather than being a
// degenerate Slot with NoInputs (see DESIGN.md).
//
// Input is safe for concurrent Get/Set, but Set must not be called while any
// query is executing: like inMemoryDatabase.SetInput, mutating an input is a
// between-revisions operation, never a mid-query one.
type Input[V any] struct {
	db          *inMemoryDatabase
	databaseKey DatabaseKey
	equal       func(a, b V) bool

	mu         sync.RWMutex
	value      V
	changedAt  Revision
	durability Durability
}

// NewInput creates a leaf input named name/key, seeded with initial at the
// database's current revision and stamped with durability. Use Medium or
// High durability for inputs that change rarely or never, so derived
// queries that only read this input (directly or transitively) can skip
// revalidating their other dependencies via the durability short-circuit.
func NewInput[V comparable](db *inMemoryDatabase, name string, key any, initial V, durability Durability) *Input[V] {
	return &Input[V]{
		db:          db,
		databaseKey: DatabaseKey{Query: name, Key: key},
		equal:       func(a, b V) bool { return a == b },
		value:       initial,
		changedAt:   db.CurrentRevision(),
		durability:  durability,
	}
}

// Get returns the input's current value and records it as a dependency of
// the query currently executing on db, if any.
func (in *Input[V]) Get(db Database) V {
	db.Runtime().RecordDependency(in)
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.value
}

// Set updates the input's value. If value differs from the previous one (per
// ==), the owning database's revision is advanced and this input's
// changedAt is stamped with the new revision; an unchanged Set is a no-op
// that does not disturb the revision clock, matching the derived-query
// slot's own backdating discipline of never penalizing downstream consumers
// for a value that flickered back to what it already was.
func (in *Input[V]) Set(value V) {
	in.mu.Lock()
	changed := !in.equal(in.value, value)
	in.value = value
	in.mu.Unlock()
	if !changed {
		return
	}
	rev := in.db.SetInput(in.durability)
	in.mu.Lock()
	in.changedAt = rev
	in.mu.Unlock()
}

// DatabaseKey implements Dependency.
func (in *Input[V]) DatabaseKey() DatabaseKey {
	return in.databaseKey
}

// MaybeChangedSince implements Dependency: an input's answer never requires
// blocking or re-execution, since Set already did all the work up front.
func (in *Input[V]) MaybeChangedSince(db Database, since Revision) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.changedAt > since
}

// Durability implements Dependency.
func (in *Input[V]) Durability(db Database) Durability {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.durability
}
