package increquery

// memoInputsKind tags which variant of the MemoInputs tagged union a memo
// holds.
type memoInputsKind int

const (
	// inputsTracked means the query read a non-empty, known set of other
	// queries; validity can be checked via MaybeChangedSince on each.
	inputsTracked memoInputsKind = iota
	// inputsNone means the query read nothing at all (a pure function of
	// its key alone, or a leaf input); the memo is valid forever once
	// computed.
	inputsNone
	// inputsUntracked means the query reported at least one untracked
	// read; the memo can never be validated and must always be
	// recomputed.
	inputsUntracked
)

// memoInputs is a tagged union over (Tracked(DependencySet) | NoInputs |
// Untracked).
type memoInputs struct {
	kind memoInputsKind
	deps *DependencySet // only meaningful when kind == inputsTracked
}

// hasUntrackedInput reports whether this memo can ever be validated without
// recomputation.
func (m memoInputs) hasUntrackedInput() bool {
	return m.kind == inputsUntracked
}

// memo is the cached record a Slot holds once a query has been computed at
// least once. The value is stored inline; hasValue records whether it is
// present.
//
// hasValue distinguishes Memoized{value: Some(_)} from Memoized{value: None}:
// a value-only eviction (Slot.Evict / a Values-only Sweep)
// clears value but keeps verifiedAt/changedAt/durability/inputs intact, so a
// later durability() or MaybeChangedSince() call can still use the stamps
// without forcing recomputation, even though Read must re-execute to hand
// back an actual value.
type memo[V any] struct {
	value    V
	hasValue bool

	// verifiedAt is the most recent revision at which this memo was
	// confirmed still valid, whether by fresh computation or by
	// successful validation against its inputs.
	verifiedAt Revision

	// changedAt is the revision at which this memo's value last actually
	// changed. It may be backdated below verifiedAt when a recomputed
	// value compares equal to the prior one.
	changedAt Revision

	// durability is the durability this memo was stamped with: the
	// minimum of the policy's configured durability and the durability
	// of every tracked dependency read while computing it, or the
	// policy's configured durability if untracked or input-free.
	durability Durability

	inputs memoInputs
}

// changedSince reports whether this memo's value is known to have changed
// at some revision strictly greater than since. Untracked memos always
// report true: they provide no validity guarantee at all.
func (m *memo[V]) changedSince(since Revision) bool {
	if m.inputs.hasUntrackedInput() {
		return true
	}
	return m.changedAt > since
}
