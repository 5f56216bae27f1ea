package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/journal"
	"github.com/roach88/lineage/internal/store"
	"github.com/roach88/lineage/internal/testutil"
)

// cacheKinds are the execution paths every run step is evaluated under.
// CacheNever is first: its rows are the ones traced.
var cacheKinds = []ir.CacheKind{ir.CacheNever, ir.CacheAlways}

type config struct {
	journal *journal.Store
	logger  *slog.Logger
}

// Option configures Run.
type Option func(*config)

// ErrJournalNotEmpty is returned when WithJournal names a journal that
// already holds mutations or runs.
var ErrJournalNotEmpty = errors.New("journal is not empty")

// WithJournal journals every mutation and run into s, which must be empty.
// Default: nothing is journaled.
func WithJournal(s *journal.Store) Option {
	return func(c *config) {
		c.journal = s
	}
}

// WithLogger sets the logger for the harness and the store, recorder and
// queries it builds. Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Harness executes one scenario against a fresh world.
// It runs with a deterministic clock and sequential run ids, so traces
// and journals are reproducible.
type Harness struct {
	rec     *journal.Recorder
	world   *store.World
	runIDs  *testutil.SequentialRunIDs
	logger  *slog.Logger
	descs   map[string]ir.QueryDesc
	queries map[string][]*engine.Query
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh world and a recorder over it
//  2. Convert every declared query to a descriptor
//  3. Execute steps in order; a query is compiled and bound under both
//     cache kinds at its first run, then kept so the cached binding is
//     maintained incrementally by the remaining steps
//  4. Check expectations and cache agreement
//
// Step failures and failed expectations are reported in the result. An
// error is returned only when the scenario cannot be executed at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := newHarness(ctx, scenario, opts)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq := int64(i + 1)
		if step.Run != "" {
			h.executeRun(ctx, seq, step, result)
			continue
		}
		h.executeMutation(ctx, seq, step, result)
	}

	h.logger.Info("scenario complete",
		"scenario", scenario.Name,
		"steps", len(scenario.Steps),
		"runs", result.Runs,
		"pass", result.Pass)
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario, opts []Option) (*Harness, error) {
	cfg := &config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.journal != nil {
		// Scenario seqs start at 1 and a journal replays one world.
		last, err := cfg.journal.GetLastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		if last > 0 {
			return nil, fmt.Errorf("scenario %s: %w (last seq %d)", scenario.Name, ErrJournalNotEmpty, last)
		}
	}

	w := store.NewWorld(store.WithLogger(cfg.logger))
	h := &Harness{
		rec: journal.NewRecorder(w, cfg.journal,
			journal.WithClock(engine.NewClock()),
			journal.WithLogger(cfg.logger)),
		world:   w,
		runIDs:  testutil.NewSequentialRunIDs("run"),
		logger:  cfg.logger,
		descs:   make(map[string]ir.QueryDesc, len(scenario.Queries)),
		queries: make(map[string][]*engine.Query, len(scenario.Queries)),
	}
	for _, name := range scenario.QueryNames() {
		desc, err := scenario.Queries[name].Descriptor(name)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		h.descs[name] = desc
	}
	return h, nil
}

// BuildWorld applies the mutation steps of a scenario to a fresh world and
// returns it. Run steps are skipped. A mutation that fails without
// declaring the error it expects is returned as an error.
func BuildWorld(ctx context.Context, scenario *Scenario, opts ...Option) (*store.World, error) {
	h, err := newHarness(ctx, scenario, opts)
	if err != nil {
		return nil, err
	}
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if step.Run != "" {
			continue
		}
		var ev TraceEvent
		err := h.mutate(ctx, step, &ev)
		if aerr := assertStepError(i+1, step.Error, err); aerr != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, aerr)
		}
	}
	return h.world, nil
}

func (h *Harness) close() {
	for _, qs := range h.queries {
		for _, q := range qs {
			q.Close()
		}
	}
}

// executeMutation applies one mutation step through the recorder.
func (h *Harness) executeMutation(ctx context.Context, seq int64, step Step, result *Result) {
	ev := TraceEvent{Seq: seq, Op: step.Op, Entity: step.Entity}
	for _, id := range step.Ids {
		ev.Ids = append(ev.Ids, id.String())
	}

	err := h.mutate(ctx, step, &ev)
	if aerr := assertStepError(int(seq), step.Error, err); aerr != nil {
		result.AddError(aerr.Error())
	}
	if err != nil {
		ev.Error = err.Error()
		if step.Error != "" {
			ev.Error = step.Error
		}
	}
	result.AddMutationTrace(ev)

	h.logger.Debug("mutation step completed",
		"step", seq,
		"op", step.Op,
		"entity", ev.Entity,
		"error", ev.Error)
}

func (h *Harness) mutate(ctx context.Context, step Step, ev *TraceEvent) error {
	switch step.Op {
	case OpNew, OpRel:
		ids, err := h.resolveIDs(step.Ids)
		if err != nil {
			return err
		}
		if step.Op == OpRel {
			ids = append(ids, ir.Plain(ir.Traversable))
		}
		e, err := h.rec.New(ctx, step.Name, ids...)
		if err != nil {
			return err
		}
		ev.Entity = h.world.Label(e)
		return nil
	case OpDeleteEmpty:
		return h.rec.DeleteEmptyTables(ctx)
	}

	e, err := h.resolveEntity(step.Entity)
	if err != nil {
		return err
	}
	switch step.Op {
	case OpAdd, OpRemove:
		ids, err := h.resolveIDs(step.Ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if step.Op == OpAdd {
				err = h.rec.Add(ctx, e, id)
			} else {
				err = h.rec.Remove(ctx, e, id)
			}
			if err != nil {
				return err
			}
		}
		return nil
	case OpDelete:
		return h.rec.Delete(ctx, e)
	case OpName:
		ev.Name = step.Name
		return h.rec.SetName(ctx, e, step.Name)
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

// executeRun runs a query under every cache kind and checks expectations.
func (h *Harness) executeRun(ctx context.Context, seq int64, step Step, result *Result) {
	var rows [][]string
	err := h.runQuery(ctx, step.Run, func(res *engine.RunResult) {
		rows = append(rows, h.render(res.Rows))
		result.Runs++
	})

	if aerr := assertStepError(int(seq), step.Error, err); aerr != nil {
		result.AddError(aerr.Error())
	}
	if err != nil {
		result.Trace = append(result.Trace, TraceEvent{Type: EventRun, Seq: seq, Query: step.Run, Error: err.Error()})
		return
	}

	traced := rows[0]
	for _, other := range rows[1:] {
		if aerr := assertSameRows(int(seq), step.Run, traced, other); aerr != nil {
			result.AddError(aerr.Error())
		}
	}
	if step.Expect != nil {
		if aerr := assertRows(int(seq), step.Run, *step.Expect, traced); aerr != nil {
			result.AddError(aerr.Error())
		}
	}
	if step.Count != nil {
		if aerr := assertCount(int(seq), step.Run, *step.Count, traced); aerr != nil {
			result.AddError(aerr.Error())
		}
	}
	result.AddRunTrace(step.Run, traced, seq)

	h.logger.Debug("run step completed", "step", seq, "query", step.Run, "rows", len(traced))
}

// runQuery runs the named query under each cache kind, journaling every
// run, and hands each result to fn.
func (h *Harness) runQuery(ctx context.Context, name string, fn func(*engine.RunResult)) error {
	qs, err := h.bind(name)
	if err != nil {
		return err
	}
	desc := h.descs[name]
	for _, q := range qs {
		res, err := q.Run(ctx)
		if err != nil {
			return err
		}
		if err := h.rec.RecordRun(ctx, desc, res); err != nil {
			return err
		}
		fn(res)
	}
	return nil
}

// bind compiles the named query against the current world on first use.
func (h *Harness) bind(name string) ([]*engine.Query, error) {
	if qs, ok := h.queries[name]; ok {
		return qs, nil
	}
	plan, err := compiler.Compile(h.world, h.descs[name])
	if err != nil {
		return nil, err
	}
	qs := make([]*engine.Query, 0, len(cacheKinds))
	for _, kind := range cacheKinds {
		q, err := engine.NewQuery(h.world, plan,
			engine.WithCacheKind(kind),
			engine.WithClock(h.rec.Clock()),
			engine.WithRunIDGenerator(h.runIDs),
			engine.WithDuplicateCheck(true),
			engine.WithLogger(h.logger))
		if err != nil {
			for _, bound := range qs {
				bound.Close()
			}
			return nil, err
		}
		qs = append(qs, q)
	}
	h.queries[name] = qs
	return qs, nil
}

// render formats rows with entity names and without table ids.
func (h *Harness) render(rows []engine.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		r.Table = 0
		out = append(out, r.Format(h.world.Label))
	}
	return out
}

func (h *Harness) resolveEntity(name string) (ir.Entity, error) {
	e := h.world.Lookup(name)
	if e == 0 {
		return 0, fmt.Errorf("unknown entity %q", name)
	}
	return e, nil
}

func (h *Harness) resolveIDs(specs []IDSpec) ([]ir.Id, error) {
	ids := make([]ir.Id, 0, len(specs))
	for _, s := range specs {
		first, err := h.resolveEntity(s.First)
		if err != nil {
			return nil, err
		}
		id := ir.Plain(first)
		if s.IsPair() {
			second, err := h.resolveEntity(s.Second)
			if err != nil {
				return nil, err
			}
			id = ir.Pair(first, second)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
