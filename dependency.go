package increquery

// Dependency is the non-generic face every Slot[K, V] presents to the rest
// of the database, so that a parent query's dependency list can hold slots
// of many different key/value types uniformly.
type Dependency interface {
	// DatabaseKey identifies this dependency process-wide.
	DatabaseKey() DatabaseKey
	// MaybeChangedSince reports whether this dependency's value could
	// differ at any revision greater than since, up to the database's
	// current revision.
	MaybeChangedSince(db Database, since Revision) bool

	// Durability reports the durability the dependency's current value is
	// stamped with (a Slot treats a call while it is InProgress as a
	// contract violation). A parent
	// query's own memo is stamped with the minimum durability across
	// every dependency it read, so that a Low-durability leaf correctly
	// pulls down the durability of everything that transitively reads
	// it.
	Durability(db Database) Durability
}

// DependencySet is an insertion-order-preserving, deduplicated collection of
// dependencies touched during one query execution. Once built it is
// immutable and safely shared (by pointer) across every parent that reads
// the query that produced it: whenever it exists at all, it is non-empty
// and order-preserving.
type DependencySet struct {
	deps []Dependency
}

// NewDependencySet builds a DependencySet from deps in the order given,
// dropping duplicate entries (by DatabaseKey) after their first occurrence.
// Returns nil if deps is empty — callers should represent "no inputs" with a
// nil *DependencySet rather than an empty one, matching the MemoInputs
// NoInputs/Tracked distinction.
func NewDependencySet(deps []Dependency) *DependencySet {
	if len(deps) == 0 {
		return nil
	}
	seen := make(map[DatabaseKey]struct{}, len(deps))
	out := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		k := d.DatabaseKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return &DependencySet{deps: out}
}

// Len returns the number of distinct dependencies in the set.
func (s *DependencySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.deps)
}

// At returns the i'th dependency in insertion order.
func (s *DependencySet) At(i int) Dependency {
	return s.deps[i]
}

// dependencyRecorder accumulates dependency reads for the query currently
// executing on one goroutine, plus whether any of those reads was untracked
// (volatile). It is owned by the Runtime, one per in-flight execution.
type dependencyRecorder struct {
	deps      []Dependency
	untracked bool
}

// record appends dep to the recorder's dependency list.
func (r *dependencyRecorder) record(dep Dependency) {
	r.deps = append(r.deps, dep)
}

// reportUntracked marks the enclosing query's result as volatile.
func (r *dependencyRecorder) reportUntracked() {
	r.untracked = true
}

// finish converts the recorder's state into the (dependencies, untracked)
// pair a completed execution reports upward. A nil *DependencySet paired
// with untracked=false means "no inputs were read at all" (MemoInputs ==
// NoInputs); untracked=true always wins regardless of what was recorded.
func (r *dependencyRecorder) finish() (deps *DependencySet, untracked bool) {
	if r.untracked {
		return nil, true
	}
	return NewDependencySet(r.deps), false
}
