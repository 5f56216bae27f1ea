package engine

import (
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/store"
)

// tableMatch is a table selected for an unbound source and the matches of
// the term on it. self is set when the matches are on the table's own ids.
type tableMatch struct {
	table   *store.Table
	matches []match
	self    bool
}

// selectTables enumerates the tables that satisfy term for an unbound
// source, in result order, and calls yield for each one that passes filter.
//
// Owner tables (tables holding an id matching pattern) are visited in
// creation order. For each owner table:
//
//  1. With self traversal, the table itself is yielded.
//  2. With up traversal, every entity of the table is walked down, in row
//     order, depth first over the tables holding (rel, entity) in creation
//     order. A table is yielded when its nearest source is the walked
//     entity. Walks recurse into the entities of yielded tables, and also
//     through IsA instances when rel is not IsA, but never through owner
//     tables.
//
// only restricts enumeration to a single owner table; nil visits all.
// Returns false if yield stopped the enumeration.
func (ev *evaluator) selectTables(term *queryir.Term, pattern ir.Id, only *store.Table, filter func(*store.Table) bool, yield func(tableMatch) bool) bool {
	var owners []*store.Table
	if only != nil {
		owners = []*store.Table{only}
	} else {
		owners = ev.v.tablesWith(pattern)
	}
	if len(owners) == 0 {
		return true
	}

	up := upEnabled(ev.v, term)
	for _, ot := range owners {
		if !ot.Alive() {
			continue
		}
		if term.Trav.HasSelf() && filter(ot) {
			if !yield(tableMatch{table: ot, matches: selfMatches(ot, pattern, 0), self: true}) {
				return false
			}
		}
		if !up {
			continue
		}
		for _, e := range ev.v.entities(ot) {
			w := &walker{
				ev:        ev,
				term:      term,
				pattern:   pattern,
				root:      e,
				filter:    filter,
				yield:     yield,
				visited:   make(map[store.TableID]bool),
				instances: make(map[store.TableID]bool),
			}
			if !w.down(e) {
				return false
			}
		}
	}
	return true
}

// walker is the state of one down-walk from a root entity that owns the
// pattern.
type walker struct {
	ev      *evaluator
	term    *queryir.Term
	pattern ir.Id
	root    ir.Entity
	filter  func(*store.Table) bool
	yield   func(tableMatch) bool

	visited   map[store.TableID]bool // tables checked through rel
	instances map[store.TableID]bool // tables descended through IsA
}

func (w *walker) down(e ir.Entity) bool {
	v := w.ev.v
	for _, t := range v.tablesWith(ir.Pair(w.term.Rel, e)) {
		if w.visited[t.ID()] {
			continue
		}
		w.visited[t.ID()] = true

		owned := t.HasMatch(w.pattern)
		if owned && w.term.Trav.HasSelf() {
			// Yielded as a self match of its own owner table.
			continue
		}
		src, ms := resolveUp(v, t, w.term.Rel, w.pattern)
		if src != w.root {
			continue
		}
		if w.filter(t) {
			if !w.yield(tableMatch{table: t, matches: ms}) {
				return false
			}
		}
		if owned {
			continue
		}
		for _, child := range v.entities(t) {
			if !w.down(child) {
				return false
			}
		}
	}

	if w.term.Rel == ir.IsA {
		return true
	}
	// Instances inherit from e, so the relationship may continue below them.
	for _, t := range v.tablesWith(ir.Pair(ir.IsA, e)) {
		if w.instances[t.ID()] {
			continue
		}
		w.instances[t.ID()] = true
		if t.HasMatch(w.pattern) {
			continue
		}
		for _, inst := range v.entities(t) {
			if !w.down(inst) {
				return false
			}
		}
	}
	return true
}
