package engine

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/store"
)

// RunIDGenerator generates unique identifiers for query runs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// Query is a compiled query bound to a store.
//
// A query either evaluates against the store on every iteration, or keeps a
// cache that is maintained from store mutation events. Both paths produce
// the same rows at the same logical time.
//
// Thread-safety model:
//   - Store events may be delivered from any goroutine
//   - Iter, Stats and Close must be serialized by the caller
//
// INVARIANTS:
//   - The plan is never modified after NewQuery
//   - A cached query is subscribed to the store until Close
type Query struct {
	world *store.World
	plan  *queryir.Plan

	kind   ir.CacheKind
	cache  *cache
	logger *slog.Logger
	clock  SeqClock
	runIDs RunIDGenerator
	tel    *telemetry

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	checkRows bool
	closed    bool
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithCacheKind overrides the cache kind of the plan.
//
// The same plan can be bound twice with CacheAlways and CacheNever to
// compare both execution paths.
func WithCacheKind(kind ir.CacheKind) QueryOption {
	return func(q *Query) {
		q.kind = kind
	}
}

// WithLogger sets the logger used for cache and iteration diagnostics.
// Default: slog.Default().
func WithLogger(l *slog.Logger) QueryOption {
	return func(q *Query) {
		q.logger = l
	}
}

// WithMeterProvider sets the meter provider for query metrics.
// Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) QueryOption {
	return func(q *Query) {
		q.meterProvider = mp
	}
}

// WithTracerProvider sets the tracer provider for query spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) QueryOption {
	return func(q *Query) {
		q.tracerProvider = tp
	}
}

// WithClock sets the logical clock that stamps cache refreshes and runs.
func WithClock(c SeqClock) QueryOption {
	return func(q *Query) {
		q.clock = c
	}
}

// WithRunIDGenerator sets the generator for run identifiers.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) QueryOption {
	return func(q *Query) {
		q.runIDs = g
	}
}

// WithDuplicateCheck enables or disables the duplicate row check.
// Default: enabled.
func WithDuplicateCheck(enabled bool) QueryOption {
	return func(q *Query) {
		q.checkRows = enabled
	}
}

// NewQuery binds a compiled plan to a store.
//
// A cached query subscribes to the store immediately; the cache itself is
// populated on the first iteration.
func NewQuery(w *store.World, plan *queryir.Plan, opts ...QueryOption) (*Query, error) {
	if w == nil {
		return nil, errors.New("new query: nil store")
	}
	if plan == nil {
		return nil, errors.New("new query: nil plan")
	}

	q := &Query{
		world:     w,
		plan:      plan,
		kind:      plan.CacheKind,
		logger:    slog.Default(),
		clock:     NewClock(),
		runIDs:    UUIDv7Generator{},
		checkRows: true,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.meterProvider == nil {
		q.meterProvider = otel.GetMeterProvider()
	}
	if q.tracerProvider == nil {
		q.tracerProvider = otel.GetTracerProvider()
	}

	tel, err := newTelemetry(plan.Name, q.meterProvider, q.tracerProvider)
	if err != nil {
		return nil, err
	}
	q.tel = tel

	if q.Cached() {
		q.cache = newCache(q)
	}
	q.logger.Debug("query created",
		"query", plan.Name,
		"cache_kind", q.kind.String(),
		"cached", q.Cached(),
		"steps", len(plan.Steps))
	return q, nil
}

// Plan returns the compiled plan.
func (q *Query) Plan() *queryir.Plan { return q.plan }

// Name returns the query name.
func (q *Query) Name() string { return q.plan.Name }

// CacheKind returns the effective cache kind.
func (q *Query) CacheKind() ir.CacheKind { return q.kind }

// Cached reports whether the query maintains a cache: CacheAlways does,
// CacheNever does not, CacheDefault does when every term is sourced on
// $this.
func (q *Query) Cached() bool {
	switch q.kind {
	case ir.CacheAlways:
		return true
	case ir.CacheNever:
		return false
	}
	return q.plan.ThisSourced()
}

// Iter begins an iteration. It never fails; a query that cannot match
// simply yields no rows.
func (q *Query) Iter() *Iter {
	return &Iter{
		q:      q,
		preset: make(map[int]ir.Entity),
		pos:    -1,
	}
}

// Stats returns cache counters. An uncached query reports zero values.
func (q *Query) Stats() Stats {
	if q.cache == nil {
		return Stats{}
	}
	return q.cache.stats()
}

// Close releases the query's store subscription. Iterators created before
// Close remain readable.
func (q *Query) Close() {
	if q.closed {
		return
	}
	q.closed = true
	if q.cache != nil {
		q.cache.close()
	}
}

// evaluate runs the plan directly against the store.
func (q *Query) evaluate(preset map[int]ir.Entity) []row {
	var rows []row
	ev := &evaluator{
		plan: q.plan,
		v:    worldView{w: q.world},
		emit: func(r row) { rows = append(rows, r) },
	}
	f := newFrame(q.plan)
	for slot, e := range preset {
		if slot != queryir.ThisSlot {
			f.vars[slot] = e
			continue
		}
		t := q.world.TableOf(e)
		if t == nil {
			return nil
		}
		f.table = t
		f.offset = rowOf(t, e)
		f.count = 1
	}
	ev.run(f)
	return rows
}

// rowOf returns the row index of e in t, -1 if absent.
func rowOf(t *store.Table, e ir.Entity) int {
	for i, x := range t.Entities() {
		if x == e {
			return i
		}
	}
	return -1
}
