package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// Recorder applies mutations to a world and journals each one that
// succeeds, stamped with the next seq of its clock.
//
// Queries that share the recorder's clock (engine.WithClock) stamp their
// runs on the same timeline, which is what Replay uses to interleave runs
// with mutations.
//
// A Recorder with a nil Store applies mutations without journaling them.
type Recorder struct {
	world  *store.World
	store  *Store
	clock  engine.SeqClock
	logger *slog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the clock that stamps mutations.
// Default: a new engine.Clock.
func WithClock(c engine.SeqClock) RecorderOption {
	return func(r *Recorder) {
		r.clock = c
	}
}

// WithLogger sets the recorder logger.
// Default: slog.Default().
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder creates a recorder for w journaling into s.
func NewRecorder(w *store.World, s *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		world:  w,
		store:  s,
		clock:  engine.NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// World returns the recorded world.
func (r *Recorder) World() *store.World { return r.world }

// Clock returns the recorder clock.
func (r *Recorder) Clock() engine.SeqClock { return r.clock }

// New creates an entity directly in the table of ids and names it when
// name is not empty.
func (r *Recorder) New(ctx context.Context, name string, ids ...ir.Id) (ir.Entity, error) {
	if name != "" && r.world.Lookup(name) != 0 {
		return 0, fmt.Errorf("new entity %q: %w", name, store.ErrNameTaken)
	}
	e, err := r.world.NewWith(ids...)
	if err != nil {
		return 0, err
	}
	if name != "" {
		if err := r.world.SetName(e, name); err != nil {
			return 0, err
		}
	}
	m := Mutation{Op: OpNew, Entity: e, Name: name, Ids: ids}
	return e, r.record(ctx, m)
}

// Add adds id to e.
func (r *Recorder) Add(ctx context.Context, e ir.Entity, id ir.Id) error {
	return r.apply(ctx, Mutation{Op: OpAdd, Entity: e, First: id.First, Second: id.Second})
}

// Remove removes id from e.
func (r *Recorder) Remove(ctx context.Context, e ir.Entity, id ir.Id) error {
	return r.apply(ctx, Mutation{Op: OpRemove, Entity: e, First: id.First, Second: id.Second})
}

// Delete deletes e and its ChildOf descendants.
func (r *Recorder) Delete(ctx context.Context, e ir.Entity) error {
	return r.apply(ctx, Mutation{Op: OpDelete, Entity: e})
}

// SetName names e; the empty name clears it.
func (r *Recorder) SetName(ctx context.Context, e ir.Entity, name string) error {
	return r.apply(ctx, Mutation{Op: OpName, Entity: e, Name: name})
}

// DeleteEmptyTables deletes every empty table.
func (r *Recorder) DeleteEmptyTables(ctx context.Context) error {
	return r.apply(ctx, Mutation{Op: OpDeleteEmpty})
}

// RecordRun journals a query run together with the descriptor it ran.
func (r *Recorder) RecordRun(ctx context.Context, desc ir.QueryDesc, res *engine.RunResult) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.WriteQueryRun(ctx, desc, RunFromResult(res)); err != nil {
		return err
	}
	r.logger.Debug("run journaled",
		"run_id", res.ID,
		"query", res.QueryName,
		"rows", len(res.Rows),
		"seq", res.Seq)
	return nil
}

func (r *Recorder) apply(ctx context.Context, m Mutation) error {
	if err := Apply(r.world, m); err != nil {
		return err
	}
	return r.record(ctx, m)
}

func (r *Recorder) record(ctx context.Context, m Mutation) error {
	m.Seq = r.clock.Next()
	if r.store == nil {
		return nil
	}
	if err := r.store.WriteMutation(ctx, m); err != nil {
		return err
	}
	r.logger.Debug("mutation journaled", "seq", m.Seq, "op", string(m.Op), "entity", m.Entity.String())
	return nil
}
