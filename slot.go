package increquery

import (
	"errors"
	"fmt"
	"sync"
)

// Slot is the per-key memoization cell for one query. It is safe for
// concurrent use: many goroutines may call Read, MaybeChangedSince, or
// Durability on the same slot at once, and at most one of them will ever
// execute the underlying QueryFunction for a given revision's worth of
// staleness — the rest either validate cheaply or block on the one that is
// computing.
//
// A single sync.RWMutex guards state directly, following the same
// fine-grained, one-lock-per-cell discipline a reactive Memo uses for its
// own value/valid pair; the added complexity here (the InProgress variant,
// waiter rendezvous, panic guard) exists because this package's queries may
// block on each other across goroutines, where a plain signal graph never
// blocks at all.
type Slot[K comparable, V any] struct {
	databaseKey DatabaseKey
	key         K
	queryFn     QueryFunction[K, V]
	policy      MemoizationPolicy[V]

	mu    sync.RWMutex
	state slotState[V]
}

// NewSlot constructs a Slot for one (query, key) pair. queryName should be
// stable and unique per query across the process; it becomes part of the
// slot's DatabaseKey and therefore of every log line and error message that
// mentions it.
func NewSlot[K comparable, V any](queryName string, key K, fn QueryFunction[K, V], policy MemoizationPolicy[V]) *Slot[K, V] {
	return &Slot[K, V]{
		databaseKey: DatabaseKey{Query: queryName, Key: key},
		key:         key,
		queryFn:     fn,
		policy:      policy,
		state:       notComputedState[V](),
	}
}

// DatabaseKey implements Dependency.
func (s *Slot[K, V]) DatabaseKey() DatabaseKey {
	return s.databaseKey
}

// Read returns the slot's up-to-date value as of db's current revision,
// computing or revalidating it as necessary. It may block waiting for
// another goroutine's in-progress computation of the same key. A non-nil
// error is returned only for ErrCycle; any other panic raised by the
// underlying QueryFunction (on this goroutine or one this goroutine ended up
// blocked on) propagates as a real Go panic, never as an error value.
//
// Query functions that read other tables must use ReadDependency (or
// replicate its panic(err)-on-nested-cycle convention by hand): since
// QueryFunction has no error return of its own, a cycle discovered several
// reads deep can only be threaded back up to its originating top-level Read
// call by panicking with the *wrapped* ErrCycle error at each level and
// letting Read's own recover here convert it back into a normal return.
// MaybeChangedSince's internal re-validation calls use exactly the same
// convention, so a cycle discovered while validating a parent's dependency
// unwinds through the same path.
func (s *Slot[K, V]) Read(db Database) (result V, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if cycleErr, ok := r.(error); ok && errors.Is(cycleErr, ErrCycle) {
			var zero V
			result, err = zero, cycleErr
			return
		}
		panic(r)
	}()

	rt := db.Runtime()
	for {
		if v, ok := s.probeFastPath(rt); ok {
			rt.RecordDependency(s)
			return v, nil
		}

		value, retry, readErr := s.readUpgrade(db, rt)
		if readErr != nil {
			var zero V
			return zero, readErr
		}
		if !retry {
			rt.RecordDependency(s)
			return value, nil
		}
	}
}

// probeFastPath takes only a read lock and succeeds when the slot already
// holds a memo verified at the database's current revision — the common
// case once a computation graph has settled.
func (s *Slot[K, V]) probeFastPath(rt Runtime) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.kind == stateMemoized && s.state.memo.hasValue && s.state.memo.verifiedAt == rt.CurrentRevision() {
		return s.state.memo.value, true
	}
	var zero V
	return zero, false
}

// readUpgrade takes the exclusive lock and either resolves the read
// directly or claims the slot as InProgress and falls through to
// validation/execution. The bool return means "the caller should loop back
// to probeFastPath and try again" (used after successfully waiting on
// another runtime's computation).
func (s *Slot[K, V]) readUpgrade(db Database, rt Runtime) (V, bool, error) {
	s.mu.Lock()

	switch s.state.kind {
	case stateMemoized:
		m := s.state.memo
		if m.hasValue && m.verifiedAt == rt.CurrentRevision() {
			s.mu.Unlock()
			return m.value, false, nil
		}
		if m.hasValue && !m.inputs.hasUntrackedInput() && rt.LastChangedRevision(m.durability) <= m.verifiedAt {
			m.verifiedAt = rt.CurrentRevision()
			s.mu.Unlock()
			rt.SalsaEvent(Event{Kind: EventDidValidateMemoizedValue, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey})
			return m.value, false, nil
		}
		oldMemo := m
		ip := &inProgress{runtime: rt.ID()}
		s.state = inProgressState[V](ip)
		s.mu.Unlock()
		return s.validateOrRecompute(db, rt, ip, oldMemo)

	case stateNotComputed:
		ip := &inProgress{runtime: rt.ID()}
		s.state = inProgressState[V](ip)
		s.mu.Unlock()
		guard := newPanicGuard[V](&s.mu, &s.state, s.databaseKey, ip, rt)
		defer guard.release()
		return s.execute(db, rt, guard, nil)

	case stateInProgress:
		ip := s.state.inProgress
		if ip.runtime == rt.ID() {
			s.mu.Unlock()
			rt.SalsaEvent(Event{Kind: EventDidDetectCycle, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey})
			var zero V
			return zero, false, fmt.Errorf("%w: %s", ErrCycle, s.databaseKey)
		}
		if err := rt.TryBlockOn(ip.runtime, s.databaseKey); err != nil {
			s.mu.Unlock()
			var zero V
			return zero, false, err
		}
		w := newWaiter()
		ip.waiters = append(ip.waiters, w)
		s.mu.Unlock()
		rt.SalsaEvent(Event{Kind: EventWillBlockOn, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey, OtherRuntimeID: ip.runtime})
		panicked := w.wait()
		if panicked {
			panic(fmt.Sprintf("increquery: propagated panic from %s", s.databaseKey))
		}
		var zero V
		return zero, true, nil

	default:
		s.mu.Unlock()
		panic("increquery: unreachable slot state")
	}
}

// validateOrRecompute runs while the slot is claimed InProgress by this
// runtime. It first tries the deeper validation path (walking oldMemo's
// tracked dependencies) before falling back to full re-execution of the
// query function.
func (s *Slot[K, V]) validateOrRecompute(db Database, rt Runtime, ip *inProgress, oldMemo *memo[V]) (V, bool, error) {
	guard := newPanicGuard[V](&s.mu, &s.state, s.databaseKey, ip, rt)
	defer guard.release()

	if oldMemo.hasValue && oldMemo.inputs.kind == inputsNone {
		newMemo := &memo[V]{
			value:      oldMemo.value,
			hasValue:   true,
			verifiedAt: rt.CurrentRevision(),
			changedAt:  oldMemo.changedAt,
			durability: oldMemo.durability,
			inputs:     oldMemo.inputs,
		}
		guard.proceed(newMemo)
		rt.SalsaEvent(Event{Kind: EventDidValidateMemoizedValue, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey})
		return newMemo.value, false, nil
	}

	if oldMemo.hasValue && oldMemo.inputs.kind == inputsTracked {
		deps := oldMemo.inputs.deps
		stillValid := true
		for i := 0; i < deps.Len(); i++ {
			if deps.At(i).MaybeChangedSince(db, oldMemo.verifiedAt) {
				stillValid = false
				break
			}
		}
		if stillValid {
			newMemo := &memo[V]{
				value:      oldMemo.value,
				hasValue:   true,
				verifiedAt: rt.CurrentRevision(),
				changedAt:  oldMemo.changedAt,
				durability: oldMemo.durability,
				inputs:     oldMemo.inputs,
			}
			guard.proceed(newMemo)
			rt.SalsaEvent(Event{Kind: EventDidValidateMemoizedValue, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey})
			return newMemo.value, false, nil
		}
	}

	return s.execute(db, rt, guard, oldMemo)
}

// execute invokes the query function, computes the new memo (applying
// backdating against oldMemo when the recomputed value compares equal), and
// installs it via guard. Callers own guard's lifetime (construction and the
// deferred release); execute always finishes by calling guard.proceed, even
// when the policy declines to memoize the value — a valueless memo is
// proceeded with in that case, keeping its stamps and waking waiters
// normally. guard.release is reserved for the panic/cycle unwind path.
func (s *Slot[K, V]) execute(db Database, rt Runtime, g *panicGuard[V], oldMemo *memo[V]) (V, bool, error) {
	revisionAtStart := rt.CurrentRevision()

	rt.SalsaEvent(Event{Kind: EventWillExecute, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey})
	var result V
	outcome, deps, untracked := rt.ExecuteQueryImplementation(s.databaseKey, func() {
		result = s.queryFn(db, s.key)
	})
	rt.SalsaEvent(Event{Kind: EventDidExecute, RuntimeID: rt.ID(), DatabaseKey: s.databaseKey})
	if outcome == ExecutionRevisionChanged {
		fatal("revision changed mid-computation of %s", s.databaseKey)
	}

	var inputs memoInputs
	durability := s.policy.Durability
	switch {
	case untracked:
		inputs = memoInputs{kind: inputsUntracked}
	case deps == nil:
		inputs = memoInputs{kind: inputsNone}
	default:
		inputs = memoInputs{kind: inputsTracked, deps: deps}
		for i := 0; i < deps.Len(); i++ {
			if d := deps.At(i).Durability(db); d < durability {
				durability = d
			}
		}
	}

	changedAt := revisionAtStart
	if oldMemo != nil && oldMemo.hasValue && durability >= oldMemo.durability && s.policy.Equal(oldMemo.value, result) {
		changedAt = oldMemo.changedAt
	}

	newMemo := &memo[V]{
		value:      result,
		hasValue:   true,
		verifiedAt: revisionAtStart,
		changedAt:  changedAt,
		durability: durability,
		inputs:     inputs,
	}

	if !s.policy.ShouldMemoizeValue(s.key, result) {
		// The policy declined to retain the value, but the computation
		// still completed normally: install a valueless memo carrying
		// the same stamps a retained one would have gotten, and wake
		// waiters with panicked=false. Only a genuine panic or cycle
		// return goes through guard.release().
		newMemo.hasValue = false
		g.proceed(newMemo)
		return result, false, nil
	}

	g.proceed(newMemo)
	return result, false, nil
}

// MaybeChangedSince implements Dependency: it reports whether this slot's
// value is known (or suspected) to have changed at some revision strictly
// after since. It forces validation (computing the slot if necessary) in
// order to give a precise answer: a parent cannot decide its own validity
// without first pinning down whether its child actually changed.
func (s *Slot[K, V]) MaybeChangedSince(db Database, since Revision) bool {
	rt := db.Runtime()

	s.mu.RLock()
	if s.state.kind == stateMemoized {
		m := s.state.memo
		if m.verifiedAt == rt.CurrentRevision() {
			changed := m.changedSince(since)
			s.mu.RUnlock()
			return changed
		}
	}
	s.mu.RUnlock()

	if _, err := s.Read(db); err != nil {
		// A cycle surfaced while re-deriving our own value on behalf of
		// a parent's validity check: the parent cannot make progress
		// either, so propagate as a real panic rather than a bool.
		panic(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.kind != stateMemoized {
		// The slot was reset (e.g. by a concurrent Sweep or DropAll)
		// after the Read above: there is no stable memo to compare
		// against, so report the conservative answer.
		return true
	}
	return s.state.memo.changedSince(since)
}

// Durability implements Dependency. If the slot has never been computed,
// Low is returned — the safest (most conservative) assumption, since an
// uncomputed slot gives no evidence of stability. A Memoized slot's cached
// durability is only trustworthy while the durability short-circuit still
// holds; once some input of at least this durability has changed since
// verifiedAt, the cached summary is stale and Low is reported instead, even
// though the value and stamps themselves are left untouched.
func (s *Slot[K, V]) Durability(db Database) Durability {
	rt := db.Runtime()
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state.kind {
	case stateMemoized:
		m := s.state.memo
		if !m.inputs.hasUntrackedInput() && rt.LastChangedRevision(m.durability) <= m.verifiedAt {
			return m.durability
		}
		return Low
	case stateInProgress:
		// A caller can only legitimately ask for a dependency's
		// durability after having read it (which resolves InProgress
		// to Memoized before returning); observing InProgress here
		// means some query asked about a slot it never actually read.
		fatal("Durability() observed InProgress state for %s", s.databaseKey)
		return Low // unreachable: fatal panics
	default:
		// Evicted concurrently with this call, or never read. Low is
		// the safe, conservative assumption.
		return Low
	}
}

// DebugEntry implements the slot half of a database-wide debug dump:
// present reports whether this slot has ever been touched at
// all (false for NotComputed, which contributes no row to a dump); hasValue
// distinguishes an in-progress or value-evicted slot (present but no value)
// from a slot holding an actual cached value.
func (s *Slot[K, V]) DebugEntry() (key DatabaseKey, value V, hasValue bool, present bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state.kind {
	case stateNotComputed:
		return s.databaseKey, value, false, false
	case stateInProgress:
		return s.databaseKey, value, false, true
	default:
		m := s.state.memo
		if m.hasValue {
			return s.databaseKey, m.value, true, true
		}
		return s.databaseKey, value, false, true
	}
}

// clearValue clears this slot's cached value in place, keeping verifiedAt,
// changedAt, durability and inputs exactly as they were: a memo may
// transition to Memoized{value:None} without losing its stamps. It
// returns the cleared value and whether a clear actually happened.
// InProgress slots are never touched (an in-flight computation always wins
// the race); a memo that already has no value reports cleared=false. If
// respectPin is true, memos with an untracked input are left alone entirely:
// recomputing a volatile query outside of its normal call site would
// silently change the database's observable behavior, so passive eviction
// must never touch them.
func (s *Slot[K, V]) clearValue(respectPin bool) (value V, cleared bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.kind != stateMemoized {
		return value, false
	}
	m := s.state.memo
	if !m.hasValue {
		return value, false
	}
	if respectPin && m.inputs.hasUntrackedInput() {
		return value, false
	}
	value = m.value
	s.state = memoizedState(&memo[V]{
		verifiedAt: m.verifiedAt,
		changedAt:  m.changedAt,
		durability: m.durability,
		inputs:     m.inputs,
	})
	return value, true
}

// Evict clears this slot's cached value — keeping verified_at/changed_at/
// durability/inputs intact — if doing so is safe, per clearValue's
// untracked-input protection. It is the callback the Table wires to its LRU
// cache's eviction hook.
func (s *Slot[K, V]) Evict() {
	s.clearValue(true)
}

// EvictNotify behaves like Evict but additionally invokes disposer with the
// cleared value, exactly once, if and only if eviction actually discarded a
// value. A nil disposer is equivalent to Evict. Returns whether a value was
// actually cleared.
func (s *Slot[K, V]) EvictNotify(disposer func(V)) bool {
	v, cleared := s.clearValue(true)
	if cleared && disposer != nil {
		disposer(v)
	}
	return cleared
}

// ClearForTeardown unconditionally discards this slot's memo entirely —
// including a volatile (untracked-input) one — resetting it to NotComputed,
// and invokes disposer with the cleared value if a value was present. Used
// when an entire Table is being dropped, where no future read can observe
// the stale pin and the slot itself will never be reused. Returns whether
// the slot held a memo at all, so callers can report an eviction event.
func (s *Slot[K, V]) ClearForTeardown(disposer func(V)) bool {
	s.mu.Lock()
	wasMemoized := s.state.kind == stateMemoized
	var value V
	hadValue := false
	if wasMemoized {
		value = s.state.memo.value
		hadValue = s.state.memo.hasValue
	}
	if wasMemoized {
		s.state = notComputedState[V]()
	}
	s.mu.Unlock()
	if hadValue && disposer != nil {
		disposer(value)
	}
	return wasMemoized
}

// Sweep clears this slot's memo according to strategy, regardless of
// whether it is currently up to date, except that InProgress slots are never
// touched and a current memo with untracked inputs is always protected
// outright — even under DiscardAlways — since recomputing a volatile query
// outside of its normal call site right now would silently change the
// database's observable behavior. Once past those guards,
// DiscardValuesOnly only clears the cached value (stamps survive, matching
// Evict); DiscardEverything resets the slot to NotComputed. Returns whether
// anything was actually discarded, so callers can report an eviction event.
func (s *Slot[K, V]) Sweep(strategy SweepStrategy, currentRevision Revision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.kind != stateMemoized {
		return false
	}
	m := s.state.memo
	current := m.verifiedAt == currentRevision

	if strategy.DiscardIf == DiscardOutdated && current {
		return false
	}
	if m.inputs.hasUntrackedInput() && current {
		return false
	}

	if strategy.DiscardWhat == DiscardValuesOnly {
		if !m.hasValue {
			return false
		}
		s.state = memoizedState(&memo[V]{
			verifiedAt: m.verifiedAt,
			changedAt:  m.changedAt,
			durability: m.durability,
			inputs:     m.inputs,
		})
		return true
	}

	s.state = notComputedState[V]()
	return true
}
