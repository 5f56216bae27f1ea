package engine

import (
	"strconv"
	"strings"
)

// rowGuard tracks the rows produced by one iteration so that a row is never
// reported twice.
//
// Two rows are the same when they cover the same entities of the same table
// with the same fields and variable values. A repeated row means the
// evaluator enumerated one binding through two paths, which is a bug in the
// engine, not in the query.
type rowGuard struct {
	seen map[string]bool
}

func newRowGuard() *rowGuard {
	return &rowGuard{seen: make(map[string]bool)}
}

// record marks r as produced. It returns the row key and whether r was
// already produced.
func (g *rowGuard) record(r *row) (string, bool) {
	key := rowKey(r)
	if g.seen[key] {
		return key, true
	}
	g.seen[key] = true
	return key, false
}

func rowKey(r *row) string {
	var b strings.Builder
	if r.table != nil {
		b.WriteString(strconv.FormatUint(uint64(r.table.ID()), 10))
	}
	b.WriteByte('@')
	b.WriteString(strconv.Itoa(r.offset))
	b.WriteByte('+')
	b.WriteString(strconv.Itoa(r.count))
	for _, f := range r.fields {
		b.WriteByte('|')
		if f.Set {
			b.WriteByte('s')
		}
		b.WriteString(f.ID.String())
		b.WriteByte('<')
		b.WriteString(strconv.FormatUint(uint64(f.Src), 10))
	}
	for _, v := range r.vars {
		b.WriteByte('$')
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	return b.String()
}

// checkDuplicates panics with a DuplicateRowError if rows contains the same
// row twice.
func checkDuplicates(query string, rows []row) {
	g := newRowGuard()
	for i := range rows {
		if key, dup := g.record(&rows[i]); dup {
			panic(NewDuplicateRowError(query, key))
		}
	}
}
