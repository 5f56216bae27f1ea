package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// testWorld is a store with helpers for building fixtures by name.
type testWorld struct {
	*store.World
	t *testing.T
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	return &testWorld{World: store.NewWorld(store.WithLogger(discardLogger())), t: t}
}

// tag creates a named entity with no ids.
func (w *testWorld) tag(name string) ir.Entity {
	w.t.Helper()
	e, err := w.NewNamed(name)
	require.NoError(w.t, err)
	return e
}

// rel creates a named traversable relationship.
func (w *testWorld) rel(name string) ir.Entity {
	w.t.Helper()
	e := w.tag(name)
	require.NoError(w.t, w.MarkTraversable(e))
	return e
}

// entity creates a named entity directly in the table of ids.
func (w *testWorld) entity(name string, ids ...ir.Id) ir.Entity {
	w.t.Helper()
	e, err := w.NewWith(ids...)
	require.NoError(w.t, err)
	if name != "" {
		require.NoError(w.t, w.SetName(e, name))
	}
	return e
}

// query compiles desc and binds it with the given cache kind.
func (w *testWorld) query(desc ir.QueryDesc, kind ir.CacheKind, opts ...QueryOption) *Query {
	w.t.Helper()
	plan, err := compiler.Compile(w.World, desc)
	require.NoError(w.t, err)
	opts = append([]QueryOption{WithCacheKind(kind), WithLogger(discardLogger())}, opts...)
	q, err := NewQuery(w.World, plan, opts...)
	require.NoError(w.t, err)
	w.t.Cleanup(q.Close)
	return q
}

// rows iterates q and renders each row with entity names and without the
// table id.
func (w *testWorld) rows(q *Query) []string {
	return w.format(Collect(q.Iter()))
}

func (w *testWorld) format(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		r.Table = 0
		out = append(out, r.Format(w.Label))
	}
	return out
}

func terms(ts ...ir.TermDesc) ir.QueryDesc {
	return ir.QueryDesc{Name: "test", Terms: ts}
}

// cacheKinds are the execution paths every traversal case runs under.
var cacheKinds = []ir.CacheKind{ir.CacheNever, ir.CacheAlways}

// eachCacheKind runs fn once per execution path.
func eachCacheKind(t *testing.T, fn func(t *testing.T, kind ir.CacheKind)) {
	for _, kind := range cacheKinds {
		t.Run(kind.String(), func(t *testing.T) {
			fn(t, kind)
		})
	}
}

// recoverRuntimeError runs fn and returns the *RuntimeError it panics with.
func recoverRuntimeError(t *testing.T, fn func()) (err *RuntimeError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		var ok bool
		err, ok = r.(*RuntimeError)
		require.True(t, ok, "panic value %T is not *RuntimeError", r)
	}()
	fn()
	return nil
}
