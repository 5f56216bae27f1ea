package journal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// RunCheck is the verification of one journaled run.
type RunCheck struct {
	RunID        string `json:"run_id"`
	QueryName    string `json:"query_name"`
	CacheKind    string `json:"cache_kind"`
	Seq          int64  `json:"seq"`
	RowCount     int    `json:"row_count"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash,omitempty"`
	Match        bool   `json:"match"`
	Error        string `json:"error,omitempty"`
}

// ReplayResult is the outcome of replaying a journal.
type ReplayResult struct {
	Mutations     int        `json:"mutations"`
	Runs          []RunCheck `json:"runs"`
	LastSeq       int64      `json:"last_seq"`
	Deterministic bool       `json:"deterministic"`
}

// Mismatches returns the runs that did not reproduce.
func (r *ReplayResult) Mismatches() []RunCheck {
	var out []RunCheck
	for _, c := range r.Runs {
		if !c.Match {
			out = append(out, c)
		}
	}
	return out
}

type replayConfig struct {
	logger *slog.Logger
	filter RunFilter
}

// ReplayOption configures Replay.
type ReplayOption func(*replayConfig)

// WithReplayLogger sets the logger used by Replay and the store and
// queries it builds. Default: logs are discarded.
func WithReplayLogger(l *slog.Logger) ReplayOption {
	return func(c *replayConfig) {
		c.logger = l
	}
}

// WithRunFilter limits the runs Replay verifies. Every mutation is still
// applied.
func WithRunFilter(f RunFilter) ReplayOption {
	return func(c *replayConfig) {
		c.filter = f
	}
}

// Replay rebuilds a world from the journaled mutations and reruns every
// journaled query run at its position in the seq order, comparing row
// hashes.
//
// Each (descriptor, cache kind) pair is compiled and bound once, at its
// first run, and reused for later runs, so cached queries are maintained
// incrementally across the replayed mutations exactly as they were when
// recorded.
//
// A mutation that fails to apply is an error: the world can no longer be
// trusted. A run that fails to compile or reproduce is reported in its
// RunCheck.
func Replay(ctx context.Context, s *Store, opts ...ReplayOption) (*ReplayResult, error) {
	cfg := &replayConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}

	mutations, err := s.ReadMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	runs, err := s.FindRuns(ctx, cfg.filter)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	descs, err := s.ReadQueries(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	w := store.NewWorld(store.WithLogger(cfg.logger))
	queries := make(map[string]*engine.Query)
	defer func() {
		for _, q := range queries {
			q.Close()
		}
	}()

	result := &ReplayResult{
		Runs:          make([]RunCheck, 0, len(runs)),
		Deterministic: true,
	}

	next := 0
	applyUntil := func(seq int64) error {
		for ; next < len(mutations) && mutations[next].Seq < seq; next++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			m := mutations[next]
			if err := Apply(w, m); err != nil {
				return err
			}
			result.Mutations++
			result.LastSeq = m.Seq
		}
		return nil
	}

	for _, run := range runs {
		if err := applyUntil(run.Seq); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}

		check := RunCheck{
			RunID:        run.ID,
			QueryName:    run.QueryName,
			CacheKind:    run.CacheKind.String(),
			Seq:          run.Seq,
			RowCount:     run.RowCount,
			ExpectedHash: run.RowsHash,
		}

		q, err := bindReplayQuery(w, queries, descs, run, cfg.logger)
		if err == nil {
			var res *engine.RunResult
			res, err = q.Run(ctx)
			if err == nil {
				check.ActualHash = res.RowsHash
				check.Match = res.RowsHash == run.RowsHash && len(res.Rows) == run.RowCount
			}
		}
		if err != nil {
			check.Error = err.Error()
		}
		if !check.Match {
			result.Deterministic = false
			cfg.logger.Warn("replayed run differs",
				"run_id", run.ID,
				"query", run.QueryName,
				"expected", run.RowsHash,
				"actual", check.ActualHash,
				"error", check.Error)
		}
		result.Runs = append(result.Runs, check)
		result.LastSeq = max(result.LastSeq, run.Seq)
	}

	if err := applyUntil(math.MaxInt64); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	cfg.logger.Info("replay complete",
		"mutations", result.Mutations,
		"runs", len(result.Runs),
		"deterministic", result.Deterministic)
	return result, nil
}

// bindReplayQuery returns the query bound for the run's descriptor and
// cache kind, compiling it against the current world on first use.
func bindReplayQuery(
	w *store.World,
	queries map[string]*engine.Query,
	descs map[string]ir.QueryDesc,
	run QueryRun,
	logger *slog.Logger,
) (*engine.Query, error) {
	key := run.QueryHash + "/" + run.CacheKind.String()
	if q, ok := queries[key]; ok {
		return q, nil
	}
	desc, ok := descs[run.QueryHash]
	if !ok {
		return nil, fmt.Errorf("run %s: descriptor %s not in journal", run.ID, run.QueryHash)
	}
	desc.Name = run.QueryName
	plan, err := compiler.Compile(w, desc)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	q, err := engine.NewQuery(w, plan,
		engine.WithCacheKind(run.CacheKind),
		engine.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	queries[key] = q
	return q, nil
}
