package increquery

import "log/slog"

// EventKind tags the opaque observability events the slot emits at its key
// transition points. Tests and tracing consumers match on these tags;
// application code should treat them as logging/metrics hooks, never as
// control flow.
type EventKind int

const (
	// EventWillBlockOn fires just before a goroutine releases the state
	// lock and blocks waiting on another runtime's in-progress
	// computation.
	EventWillBlockOn EventKind = iota
	// EventDidValidateMemoizedValue fires when an old memo survives
	// validation without re-executing the query function.
	EventDidValidateMemoizedValue
	// EventWillExecute fires immediately before a query function runs,
	// whether because nothing was cached or because validation found a
	// dependency had changed. Pairs with EventDidExecute.
	EventWillExecute
	// EventDidExecute fires immediately after a query function returns
	// normally (a panic never reaches this point; guard.release handles
	// that path separately).
	EventDidExecute
	// EventDidDetectCycle fires when a runtime discovers it is already
	// the one computing the key it is trying to read.
	EventDidDetectCycle
	// EventDidEvict fires when a slot's cached value is discarded by LRU
	// eviction, a Sweep, or DropAll.
	EventDidEvict
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventWillBlockOn:
		return "WillBlockOn"
	case EventDidValidateMemoizedValue:
		return "DidValidateMemoizedValue"
	case EventWillExecute:
		return "WillExecute"
	case EventDidExecute:
		return "DidExecute"
	case EventDidDetectCycle:
		return "DidDetectCycle"
	case EventDidEvict:
		return "DidEvict"
	default:
		return "Unknown"
	}
}

// Event is one observability event emitted by a Slot. Exactly one of
// OtherRuntimeID's zero value or a real RuntimeID is meaningful, depending
// on Kind.
type Event struct {
	Kind           EventKind
	RuntimeID      RuntimeID
	DatabaseKey    DatabaseKey
	OtherRuntimeID RuntimeID // only set for EventWillBlockOn
}

// EventSink receives Events as they are emitted. Implementations must not
// block or re-enter the database (the slot may be holding no locks, but it
// is always on the hot path).
type EventSink interface {
	SalsaEvent(Event)
}

// SlogEventSink adapts EventSink to log/slog, one log call per event site.
type SlogEventSink struct {
	Logger *slog.Logger
}

// NewSlogEventSink returns a SlogEventSink; a nil logger falls back to
// slog.Default().
func NewSlogEventSink(logger *slog.Logger) *SlogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEventSink{Logger: logger}
}

// SalsaEvent implements EventSink.
func (s *SlogEventSink) SalsaEvent(evt Event) {
	switch evt.Kind {
	case EventWillBlockOn:
		s.Logger.Debug("will block on in-progress query",
			"database_key", evt.DatabaseKey.String(),
			"runtime_id", evt.RuntimeID,
			"other_runtime_id", evt.OtherRuntimeID,
		)
	case EventDidValidateMemoizedValue:
		s.Logger.Debug("validated memoized value",
			"database_key", evt.DatabaseKey.String(),
			"runtime_id", evt.RuntimeID,
		)
	case EventWillExecute:
		s.Logger.Debug("executing query",
			"database_key", evt.DatabaseKey.String(),
			"runtime_id", evt.RuntimeID,
		)
	case EventDidExecute:
		s.Logger.Debug("executed query",
			"database_key", evt.DatabaseKey.String(),
			"runtime_id", evt.RuntimeID,
		)
	case EventDidDetectCycle:
		s.Logger.Debug("detected cycle",
			"database_key", evt.DatabaseKey.String(),
			"runtime_id", evt.RuntimeID,
		)
	case EventDidEvict:
		s.Logger.Debug("evicted memoized value",
			"database_key", evt.DatabaseKey.String(),
		)
	}
}

// noopEventSink discards every event; used as the zero-value fallback so
// Runtimes need not nil-check before calling SalsaEvent.
type noopEventSink struct{}

func (noopEventSink) SalsaEvent(Event) {}
