package journal

import (
	"context"
	"fmt"

	"github.com/roach88/lineage/internal/querysql"
)

var runColumns = []string{"id", "query_name", "query_hash", "cache_kind", "row_count", "rows_hash", "seq"}

// RunFilter selects journaled runs. Zero fields match everything.
type RunFilter struct {
	QueryName string
	QueryHash string
	CacheKind string // "always", "never", "default"
	MinSeq    int64
	MaxSeq    int64
}

// Matches reports whether run passes the filter.
func (f RunFilter) Matches(run QueryRun) bool {
	switch {
	case f.QueryName != "" && run.QueryName != f.QueryName:
		return false
	case f.QueryHash != "" && run.QueryHash != f.QueryHash:
		return false
	case f.CacheKind != "" && run.CacheKind.String() != f.CacheKind:
		return false
	case f.MinSeq > 0 && run.Seq < f.MinSeq:
		return false
	case f.MaxSeq > 0 && run.Seq > f.MaxSeq:
		return false
	}
	return true
}

func (f RunFilter) predicate() querysql.Predicate {
	var and querysql.And
	if f.QueryName != "" {
		and.Predicates = append(and.Predicates, querysql.Equals{Column: "query_name", Value: f.QueryName})
	}
	if f.QueryHash != "" {
		and.Predicates = append(and.Predicates, querysql.Equals{Column: "query_hash", Value: f.QueryHash})
	}
	if f.CacheKind != "" {
		and.Predicates = append(and.Predicates, querysql.Equals{Column: "cache_kind", Value: f.CacheKind})
	}
	if f.MinSeq > 0 {
		and.Predicates = append(and.Predicates, querysql.AtLeast{Column: "seq", Value: f.MinSeq})
	}
	if f.MaxSeq > 0 {
		and.Predicates = append(and.Predicates, querysql.AtMost{Column: "seq", Value: f.MaxSeq})
	}
	return and
}

// FindRuns returns the runs matching f ordered by seq ASC.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) FindRuns(ctx context.Context, f RunFilter) ([]QueryRun, error) {
	query, params, err := querysql.Compile(querysql.Select{
		From:    "query_runs",
		Columns: runColumns,
		Filter:  f.predicate(),
		OrderBy: []string{"seq", "id"},
	})
	if err != nil {
		return nil, fmt.Errorf("find runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []QueryRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
