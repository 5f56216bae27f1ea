package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs generates numbered run ids: "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// Unlike engine.FixedGenerator, which returns a declared list and panics when
// it runs out, SequentialRunIDs never runs out. Scenarios that run an
// unknown number of queries get byte-identical journals and golden traces.
//
// Thread-safety: SequentialRunIDs is safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialRunIDs creates a generator. An empty prefix uses "run".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next run id.
//
// Implements engine.RunIDGenerator.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
