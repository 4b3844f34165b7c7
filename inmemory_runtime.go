package increquery

import "sync"

// Database is the reference, in-process implementation of the engine: one
// revision counter, one durability tracker, one wait-for graph, and a fresh
// RuntimeID handed out per logical caller. Production users of this package
// are expected to follow the same shape when wiring their own query tables
// in, substituting real storage or distributed coordination where this
// reference implementation keeps everything in memory.
//
// inMemoryDatabase is unexported; callers obtain one only through
// NewDatabase and the per-goroutine views NewRuntime hands back, scoping
// a fresh RuntimeID to each logical caller.
type inMemoryDatabase struct {
	revisions  *RevisionCounter
	durability *DurabilityTracker
	waitGraph  *waitForGraph
	sink       EventSink
}

// NewDatabase constructs a fresh in-memory database at RevisionZero with a
// no-op event sink. Use WithEventSink to attach a SlogEventSink or a custom
// one for tests.
func NewDatabase() *inMemoryDatabase {
	return &inMemoryDatabase{
		revisions:  &RevisionCounter{},
		durability: &DurabilityTracker{},
		waitGraph:  newWaitForGraph(),
		sink:       noopEventSink{},
	}
}

// WithEventSink installs sink as the destination for this database's
// observability events, replacing the default no-op sink.
func (d *inMemoryDatabase) WithEventSink(sink EventSink) *inMemoryDatabase {
	d.sink = sink
	return d
}

// NewRuntime hands back a fresh execution context bound to this database. A
// typical caller gets one runtime per goroutine it spawns to drive queries
// concurrently; sharing one runtime across goroutines is not supported —
// a single handle is not meant to be used from two threads at once.
func (d *inMemoryDatabase) NewRuntime() *threadRuntime {
	return &threadRuntime{db: d, id: NewRuntimeID()}
}

// SetInput advances the database's revision and records that an input of
// durability d changed at the new revision. Callers of this package are
// expected to route all external mutations through a call shaped like this
// one: advance the clock, then note which durability class moved, all
// between query batches.
func (d *inMemoryDatabase) SetInput(durability Durability) Revision {
	rev := d.revisions.Advance()
	d.durability.NoteChange(durability, rev)
	return rev
}

// CurrentRevision returns the database's current revision.
func (d *inMemoryDatabase) CurrentRevision() Revision {
	return d.revisions.Current()
}

// threadRuntime is the per-goroutine Runtime + Database implementation:
// it satisfies both interfaces because a query body receives a Database and
// immediately asks it for its Runtime, and in this reference implementation
// those are the same value wearing two hats, exactly one per goroutine.
type threadRuntime struct {
	db *inMemoryDatabase
	id RuntimeID

	mu        sync.Mutex
	recorders []*dependencyRecorder // stack, one per nested ExecuteQueryImplementation call
}

var _ Runtime = (*threadRuntime)(nil)
var _ Database = (*threadRuntime)(nil)

// Runtime implements Database.
func (r *threadRuntime) Runtime() Runtime { return r }

// ReportUntrackedRead implements Database by delegating to the Runtime
// method of the same name.
func (r *threadRuntime) ReportUntrackedRead() {
	r.reportUntrackedReadImpl()
}

// ID implements Runtime.
func (r *threadRuntime) ID() RuntimeID { return r.id }

// CurrentRevision implements Runtime.
func (r *threadRuntime) CurrentRevision() Revision { return r.db.CurrentRevision() }

// LastChangedRevision implements Runtime.
func (r *threadRuntime) LastChangedRevision(d Durability) Revision {
	return r.db.durability.LastChanged(d)
}

func (r *threadRuntime) currentRecorder() *dependencyRecorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.recorders) == 0 {
		return nil
	}
	return r.recorders[len(r.recorders)-1]
}

func (r *threadRuntime) reportUntrackedReadImpl() {
	if rec := r.currentRecorder(); rec != nil {
		rec.reportUntracked()
	}
}

// RecordDependency implements Runtime.
func (r *threadRuntime) RecordDependency(dep Dependency) {
	if rec := r.currentRecorder(); rec != nil {
		rec.record(dep)
	}
}

// TryBlockOn implements Runtime.
func (r *threadRuntime) TryBlockOn(owner RuntimeID, key DatabaseKey) error {
	return r.db.waitGraph.tryBlockOn(r.id, owner, key)
}

// UnblockQueriesBlockedOnSelf implements Runtime.
func (r *threadRuntime) UnblockQueriesBlockedOnSelf(key DatabaseKey) {
	r.db.waitGraph.unblockKey(key)
}

// SalsaEvent implements Runtime.
func (r *threadRuntime) SalsaEvent(evt Event) {
	r.db.sink.SalsaEvent(evt)
}

// ExecuteQueryImplementation implements Runtime. It pushes a fresh
// dependencyRecorder, runs thunk, pops the recorder, and reports the
// recorded dependencies. The in-memory reference Runtime never actually
// advances the revision out from under a running thunk (there is no
// background mutator goroutine in this implementation), so outcome is
// always ExecutionCompleted; it is still threaded through so production
// Runtimes that DO support concurrent mutation have a place to report the
// conflict.
func (r *threadRuntime) ExecuteQueryImplementation(key DatabaseKey, thunk func()) (ExecutionOutcome, *DependencySet, bool) {
	rec := &dependencyRecorder{}

	r.mu.Lock()
	r.recorders = append(r.recorders, rec)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.recorders = r.recorders[:len(r.recorders)-1]
		r.mu.Unlock()
	}()

	thunk()

	deps, untracked := rec.finish()
	return ExecutionCompleted, deps, untracked
}
