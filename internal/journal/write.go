package journal

import (
	"context"
	"fmt"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/ir"
)

// QueryRun is the journaled outcome of one query run.
type QueryRun struct {
	ID        string
	QueryName string
	QueryHash string
	CacheKind ir.CacheKind
	RowCount  int
	RowsHash  string
	Seq       int64
}

// RunFromResult converts an engine run result to its journal record.
func RunFromResult(res *engine.RunResult) QueryRun {
	return QueryRun{
		ID:        res.ID,
		QueryName: res.QueryName,
		QueryHash: res.QueryHash,
		CacheKind: res.CacheKind,
		RowCount:  len(res.Rows),
		RowsHash:  res.RowsHash,
		Seq:       res.Seq,
	}
}

// WriteMutation inserts a mutation record.
// Uses ON CONFLICT(seq) DO NOTHING for idempotency - rewriting a seq is
// silently ignored.
func (s *Store) WriteMutation(ctx context.Context, m Mutation) error {
	if !m.Op.Valid() {
		return fmt.Errorf("write mutation %d: unknown op %q", m.Seq, m.Op)
	}
	idsJSON, err := marshalIDs(m.Ids)
	if err != nil {
		return fmt.Errorf("write mutation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mutations
		(seq, op, entity, first, second, name, ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		m.Seq,
		string(m.Op),
		int64(m.Entity),
		int64(m.First),
		int64(m.Second),
		m.Name,
		idsJSON,
	)
	if err != nil {
		return fmt.Errorf("write mutation: %w", err)
	}
	return nil
}

// WriteQuery stores a query descriptor under its content hash and returns
// the hash. Storing the same descriptor twice is a no-op; the first name
// stored is kept.
func (s *Store) WriteQuery(ctx context.Context, desc ir.QueryDesc) (string, error) {
	hash, err := ir.QueryHash(desc)
	if err != nil {
		return "", fmt.Errorf("write query: %w", err)
	}
	descJSON, err := marshalDescriptor(desc)
	if err != nil {
		return "", fmt.Errorf("write query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queries (hash, name, descriptor)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, desc.Name, descJSON)
	if err != nil {
		return "", fmt.Errorf("write query: %w", err)
	}
	return hash, nil
}

// WriteRun inserts a query run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
//
// Note: the descriptor named by QueryHash must have been stored with
// WriteQuery (foreign key constraint).
func (s *Store) WriteRun(ctx context.Context, run QueryRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_runs
		(id, query_name, query_hash, cache_kind, row_count, rows_hash, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.QueryName,
		run.QueryHash,
		run.CacheKind.String(),
		run.RowCount,
		run.RowsHash,
		run.Seq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteQueryRun atomically stores a descriptor and one of its runs.
func (s *Store) WriteQueryRun(ctx context.Context, desc ir.QueryDesc, run QueryRun) error {
	hash, err := ir.QueryHash(desc)
	if err != nil {
		return fmt.Errorf("write query run: %w", err)
	}
	if run.QueryHash != hash {
		return fmt.Errorf("write query run %s: hash %s does not match descriptor hash %s",
			run.ID, run.QueryHash, hash)
	}
	descJSON, err := marshalDescriptor(desc)
	if err != nil {
		return fmt.Errorf("write query run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write query run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO queries (hash, name, descriptor)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, desc.Name, descJSON); err != nil {
		return fmt.Errorf("write query run: insert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO query_runs
		(id, query_name, query_hash, cache_kind, row_count, rows_hash, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.QueryName,
		run.QueryHash,
		run.CacheKind.String(),
		run.RowCount,
		run.RowsHash,
		run.Seq,
	); err != nil {
		return fmt.Errorf("write query run: insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write query run: commit: %w", err)
	}
	return nil
}
