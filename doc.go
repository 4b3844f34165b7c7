// Package increquery implements the derived-query slot: the per-key
// memoization cell at the heart of a demand-driven incremental computation
// engine, of the kind used by language servers and compilers to avoid
// redoing work across edits.
//
// A Slot caches the result of a pure function applied to a key, tracks which
// other queries it read while computing that result, and knows how to
// revalidate itself cheaply when a caller asks whether its inputs may have
// changed since some earlier revision.
//
// # Core types
//
// Slot[K, V] is the memoization cell itself:
//
//	slot := NewSlot[int, string]("greeting", 42, myQuery, DefaultPolicy[string]())
//	stamped, err := slot.Read(db)
//
// Table[K, V] is a directory of slots for one query, bounded by an LRU
// eviction policy:
//
//	table := NewTable[int, string]("greeting", myQuery, DefaultPolicy[string]())
//	table.SetLRUCapacity(128)
//	stamped, err := table.Read(db, 42)
//
// # Collaborators
//
// The slot does not run user code, track revisions, or detect deadlocks by
// itself — it calls into a Runtime (revision counter, wait-for graph,
// dependency recorder, event sink) and a QueryFunction (the pure user
// computation). Database wires the two together. See runtime.go and
// query.go for the exact contracts.
//
// # Thread safety
//
// Slot and Table reads are safe for concurrent use by multiple goroutines:
// parallel threads, one RWMutex per slot. Table.SetDisposer and
// Table.SetEventSink are not synchronized with reads, and Input.Set must
// not run while any query is executing.
package increquery
