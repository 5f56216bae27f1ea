package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/lineage/internal/ir"
)

// RunResult is the outcome of one complete iteration of a query.
//
// RowsHash identifies the rows independently of the cache kind, so a
// journaled run can be verified by replaying the store and running again.
type RunResult struct {
	ID        string
	QueryName string
	QueryHash string
	CacheKind ir.CacheKind
	Cached    bool
	Rows      []Row
	RowsHash  string
	Seq       int64
}

// Run iterates the query to completion and stamps the result with a run id
// and the next logical time.
func (q *Query) Run(ctx context.Context) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", q.Name(), err)
	}

	id := q.runIDs.Generate()
	_, span := q.tel.startRunSpan(ctx, id, q.Cached())
	defer span.End()

	rows := Collect(q.Iter())

	canonical := make([]any, len(rows))
	for i, r := range rows {
		canonical[i] = r.Canonical()
	}
	hash, err := ir.RowsHash(canonical)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows hash failed")
		return nil, fmt.Errorf("run %s: %w", q.Name(), err)
	}

	res := &RunResult{
		ID:        id,
		QueryName: q.Name(),
		QueryHash: q.plan.Hash,
		CacheKind: q.kind,
		Cached:    q.Cached(),
		Rows:      rows,
		RowsHash:  hash,
		Seq:       q.clock.Next(),
	}
	span.SetAttributes(
		attribute.Int("query.rows", len(rows)),
		attribute.String("query.rows_hash", hash),
	)
	q.logger.Debug("query run",
		"query", q.Name(),
		"run_id", id,
		"rows", len(rows),
		"seq", res.Seq)
	return res, nil
}
