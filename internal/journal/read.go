package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lineage/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadMutations returns every mutation in seq order.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadMutations(ctx context.Context) ([]Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, op, entity, first, second, name, ids
		FROM mutations
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	mutations := []Mutation{}
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return mutations, nil
}

func scanMutation(row rowScanner) (Mutation, error) {
	var (
		m                     Mutation
		op, idsJSON           string
		entity, first, second int64
	)
	if err := row.Scan(&m.Seq, &op, &entity, &first, &second, &m.Name, &idsJSON); err != nil {
		return Mutation{}, fmt.Errorf("scan mutation: %w", err)
	}
	m.Op = Op(op)
	m.Entity = ir.Entity(entity)
	m.First = ir.Entity(first)
	m.Second = ir.Entity(second)
	ids, err := unmarshalIDs(idsJSON)
	if err != nil {
		return Mutation{}, fmt.Errorf("scan mutation %d: %w", m.Seq, err)
	}
	m.Ids = ids
	return m, nil
}

// ReadQuery returns the descriptor stored under hash.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadQuery(ctx context.Context, hash string) (ir.QueryDesc, error) {
	var descJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT descriptor FROM queries WHERE hash = ?
	`, hash).Scan(&descJSON)
	if err != nil {
		return ir.QueryDesc{}, fmt.Errorf("read query %s: %w", hash, err)
	}
	return unmarshalDescriptor(descJSON)
}

// ReadQueries returns every stored descriptor keyed by hash.
func (s *Store) ReadQueries(ctx context.Context) (map[string]ir.QueryDesc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, descriptor FROM queries ORDER BY hash
	`)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	descs := make(map[string]ir.QueryDesc)
	for rows.Next() {
		var hash, descJSON string
		if err := rows.Scan(&hash, &descJSON); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		desc, err := unmarshalDescriptor(descJSON)
		if err != nil {
			return nil, fmt.Errorf("descriptor %s: %w", hash, err)
		}
		descs[hash] = desc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return descs, nil
}

// ReadRuns returns every query run ordered by seq ASC.
func (s *Store) ReadRuns(ctx context.Context) ([]QueryRun, error) {
	return s.FindRuns(ctx, RunFilter{})
}

// ReadRun retrieves a single run by id.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (QueryRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_name, query_hash, cache_kind, row_count, rows_hash, seq
		FROM query_runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return QueryRun{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

func scanRun(row rowScanner) (QueryRun, error) {
	var (
		run  QueryRun
		kind string
	)
	if err := row.Scan(&run.ID, &run.QueryName, &run.QueryHash, &kind,
		&run.RowCount, &run.RowsHash, &run.Seq); err != nil {
		return QueryRun{}, fmt.Errorf("scan run: %w", err)
	}
	k, err := ir.ParseCacheKind(kind)
	if err != nil {
		return QueryRun{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	run.CacheKind = k
	return run, nil
}

// GetLastSeq returns the highest seq used by mutations and runs.
// Zero means the journal is empty.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var mutSeq, runSeq int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM mutations
	`).Scan(&mutSeq); err != nil {
		return 0, fmt.Errorf("get last seq from mutations: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM query_runs
	`).Scan(&runSeq); err != nil {
		return 0, fmt.Errorf("get last seq from query_runs: %w", err)
	}
	return max(mutSeq, runSeq), nil
}

// IsNotFound reports whether err means a record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
