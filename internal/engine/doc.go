// Package engine evaluates compiled query plans against a store.
//
// A Query binds a queryir.Plan to a store.World. Each call to Iter starts an
// iteration whose rows are computed when Next is first called, either by
// evaluating the plan directly or from the query's cache.
//
// EVALUATION:
//
// Steps are joined with nested loops, left to right. A term whose source is
// unbound enumerates candidates; a term whose source is bound checks it.
// Terms with up traversal resolve ids on the nearest entity reached through
// their relationship, and implicitly through IsA bases when the relationship
// is not IsA itself. A table reached by several paths is reported once, from
// its nearest source.
//
// CACHING:
//
// A cached query subscribes to store events when it is created. Events are
// queued synchronously and applied when the next iteration starts; only the
// cache segments whose recorded dependencies were touched are evaluated
// again. Cached and uncached iterations produce identical rows.
//
// CRITICAL PATTERNS:
//
// Deterministic ordering: tables in creation order, entities in row order,
// targets in type order. No maps are iterated when producing rows.
//
// Logical clock: cache refreshes and runs are stamped from Clock.Next, never
// from wall-clock time.
//
// Defects panic: an unbound required variable or a repeated row is a bug in
// the engine and panics with a *RuntimeError. Failing to match is never an
// error.
package engine
