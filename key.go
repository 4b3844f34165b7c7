package increquery

import (
	"fmt"
	"sync/atomic"
)

// DatabaseKey identifies one slot process-wide: the name of the query it
// belongs to plus the key within that query. Go has no cheap equivalent of a
// dynamically-typed key trait object, so a concrete comparable struct is
// used instead, at the cost of requiring that Key hold only comparable
// dynamic values (enforced transitively by the `comparable` constraint on
// Slot's and Table's key type parameter).
type DatabaseKey struct {
	Query string
	Key   any
}

// String implements fmt.Stringer for log lines and test failure messages.
func (k DatabaseKey) String() string {
	return fmt.Sprintf("%s(%v)", k.Query, k.Key)
}

// RuntimeID identifies one logical execution context competing to compute
// query results. Two concurrent reads of the same key race to become "the"
// computing runtime for that key; the loser waits on the winner.
type RuntimeID uint64

// String implements fmt.Stringer.
func (r RuntimeID) String() string {
	return fmt.Sprintf("Runtime(%d)", uint64(r))
}

// runtimeIDGenerator hands out process-wide unique RuntimeIDs.
var runtimeIDGenerator atomic.Uint64

// NewRuntimeID allocates a fresh, process-wide-unique RuntimeID.
func NewRuntimeID() RuntimeID {
	return RuntimeID(runtimeIDGenerator.Add(1))
}
