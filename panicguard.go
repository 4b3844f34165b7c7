package increquery

import "sync"

// panicGuard ensures that a slot's InProgress placeholder is always
// resolved — to Memoized on success or back to NotComputed on panic — no
// matter how the query function exits.
// It is the Go analogue of a Drop-based guard: Go has
// no destructors, so the equivalent safety net is a defer that runs this
// guard's release method, which is a no-op once proceed has marked the
// guard as having completed normally.
//
// The caller is responsible for `defer guard.release()` immediately after
// construction and for calling guard.proceed(...) as the very last
// statement of the non-panicking path.
type panicGuard[V any] struct {
	mu       *sync.RWMutex
	slot     *slotState[V]
	key      DatabaseKey
	ip       *inProgress
	runtime  Runtime
	resolved bool
}

// newPanicGuard records the state needed to roll back to a safe state if the
// protected section panics.
func newPanicGuard[V any](mu *sync.RWMutex, slot *slotState[V], key DatabaseKey, ip *inProgress, rt Runtime) *panicGuard[V] {
	return &panicGuard[V]{mu: mu, slot: slot, key: key, ip: ip, runtime: rt}
}

// proceed installs newMemo as the slot's Memoized state and wakes any
// waiters with panicked=false. It acquires mu itself. After proceed
// returns, release becomes a no-op.
func (g *panicGuard[V]) proceed(newMemo *memo[V]) {
	g.mu.Lock()
	*g.slot = memoizedState(newMemo)
	g.resolved = true
	g.mu.Unlock()
	g.ip.resolve(false)
	g.runtime.UnblockQueriesBlockedOnSelf(g.key)
}

// release is the deferred cleanup. If proceed already ran normally this is a
// no-op. Otherwise the goroutine is unwinding from a panic (or a cycle
// return, which also consumes the guard without calling proceed): the slot
// is reset to NotComputed — never restored to oldMemo, since the
// computation that was supposed to replace or reconfirm it never finished,
// and later readers must never be handed a memo whose validity was never
// actually re-established this
// revision — and every waiter is woken with panicked=true so they re-panic
// rather than silently observe a stale or zero value.
func (g *panicGuard[V]) release() {
	if g.resolved {
		return
	}
	g.mu.Lock()
	*g.slot = notComputedState[V]()
	g.resolved = true
	g.mu.Unlock()
	g.ip.resolve(true)
	g.runtime.UnblockQueriesBlockedOnSelf(g.key)
}
