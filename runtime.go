package increquery

// ExecutionOutcome reports how a query execution that the Runtime supervised
// finished: normally, or by observing that the database's revision advanced
// out from under it (which invalidates whatever the thunk computed).
type ExecutionOutcome int

const (
	// ExecutionCompleted means the thunk ran to completion with the
	// revision held stable throughout.
	ExecutionCompleted ExecutionOutcome = iota
	// ExecutionRevisionChanged means the database's revision advanced
	// while the thunk was running; its result must be discarded.
	ExecutionRevisionChanged
)

// Runtime is the capability contract a Slot needs from its surrounding
// database in order to execute a query: a revision clock, a durability
// clock, a dependency recorder, a wait-for graph, and an observability sink.
// Production code is expected to implement this once per Database (see
// inmemory_runtime.go for the reference implementation); Slot itself never
// assumes a particular concurrency strategy beyond what this interface
// promises.
type Runtime interface {
	// ID returns this runtime's identity, used to label in-progress slots
	// and wait-for graph edges.
	ID() RuntimeID

	// CurrentRevision returns the database's revision as of the start of
	// the currently executing query. It must not change while any query
	// is mid-execution on any runtime.
	CurrentRevision() Revision

	// LastChangedRevision returns the most recent revision at which any
	// input of durability >= d changed, per DurabilityTracker.
	LastChangedRevision(d Durability) Revision

	// ReportUntrackedRead marks the query currently executing on this
	// runtime as volatile: it read some value outside the tracked
	// dependency system (e.g. wall-clock time, a file on disk) and so can
	// never be validated, only ever recomputed.
	ReportUntrackedRead()

	// RecordDependency appends dep to the dependency list of the query
	// currently executing on this runtime.
	RecordDependency(dep Dependency)

	// TryBlockOn attempts to block this runtime on owner's in-progress
	// computation of key. Returns ErrCycle if doing so would close a
	// cycle in the wait-for graph.
	TryBlockOn(owner RuntimeID, key DatabaseKey) error

	// UnblockQueriesBlockedOnSelf releases every runtime blocked waiting
	// on this runtime's computation of key. Called once the computation
	// of key has installed its result (or unwound via panic).
	UnblockQueriesBlockedOnSelf(key DatabaseKey)

	// SalsaEvent forwards an observability event to the database's sink.
	SalsaEvent(evt Event)

	// ExecuteQueryImplementation runs thunk as the implementation of key,
	// tracking dependencies and untracked reads into a fresh recorder
	// scoped to this call, and reports whether the revision held stable
	// throughout. thunk stores its result via closure capture; Slot.Read
	// supplies a thunk that assigns into a local variable it owns.
	ExecuteQueryImplementation(key DatabaseKey, thunk func()) (ExecutionOutcome, *DependencySet, bool)
}
