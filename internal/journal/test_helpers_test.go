package journal

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// createTestStore creates a journal in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRecorder creates a world and a recorder journaling into s.
func newTestRecorder(t *testing.T, s *Store) *Recorder {
	t.Helper()
	w := store.NewWorld(store.WithLogger(discardLogger()))
	return NewRecorder(w, s,
		WithClock(engine.NewClock()),
		WithLogger(discardLogger()))
}

// bind compiles desc against the recorder's world and binds it on the
// recorder's clock.
func bind(t *testing.T, rec *Recorder, desc ir.QueryDesc, kind ir.CacheKind) *engine.Query {
	t.Helper()
	plan, err := compiler.Compile(rec.World(), desc)
	require.NoError(t, err)
	q, err := engine.NewQuery(rec.World(), plan,
		engine.WithCacheKind(kind),
		engine.WithClock(rec.Clock()),
		engine.WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return q
}
