package engine

import (
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/store"
)

// match is one way a term is satisfied for a source.
//
// id is the concrete id found. src is the entity that holds it: 0 when the
// source is $this and the id is on its own table.
type match struct {
	id  ir.Id
	src ir.Entity
}

// selfMatches returns one match per id of t matching pattern, in type order.
func selfMatches(t *store.Table, pattern ir.Id, src ir.Entity) []match {
	if t == nil {
		return nil
	}
	ids := t.Match(pattern)
	if len(ids) == 0 {
		return nil
	}
	out := make([]match, len(ids))
	for i, id := range ids {
		out[i] = match{id: id, src: src}
	}
	return out
}

// owner returns the entity that provides pattern for e: e itself when its
// table has a matching id, otherwise the nearest IsA base that does.
//
// Bases are searched breadth-first over IsA targets in type order. With
// inherit unset only e itself is checked.
func owner(v view, e ir.Entity, pattern ir.Id, inherit bool) (ir.Entity, []match) {
	t := v.tableOf(e)
	if t == nil {
		return 0, nil
	}
	if ms := selfMatches(t, pattern, e); ms != nil {
		return e, ms
	}
	if !inherit {
		return 0, nil
	}

	visited := map[ir.Entity]bool{e: true}
	frontier := t.Targets(ir.IsA)
	for len(frontier) > 0 {
		var next []ir.Entity
		for _, base := range frontier {
			if visited[base] {
				continue
			}
			visited[base] = true
			bt := v.tableOf(base)
			if bt == nil {
				continue
			}
			if ms := selfMatches(bt, pattern, base); ms != nil {
				return base, ms
			}
			next = append(next, bt.Targets(ir.IsA)...)
		}
		frontier = next
	}
	return 0, nil
}

// resolveUp finds the nearest ancestor of table t, through rel, that owns
// pattern.
//
// Ancestors are visited breadth-first, level by level, in type order of the
// relationship targets. Each ancestor is checked on its own table and, when
// rel is not IsA, on its IsA bases. The first ancestor found wins; deeper
// levels are not searched.
//
// Returns the owning entity and its matching ids, or 0 and nil.
func resolveUp(v view, t *store.Table, rel ir.Entity, pattern ir.Id) (ir.Entity, []match) {
	if t == nil || rel == 0 {
		return 0, nil
	}
	inherit := rel != ir.IsA
	visited := make(map[ir.Entity]bool)
	frontier := t.Targets(rel)
	for len(frontier) > 0 {
		var next []ir.Entity
		for _, tgt := range frontier {
			if visited[tgt] {
				continue
			}
			visited[tgt] = true
			if src, ms := owner(v, tgt, pattern, inherit); src != 0 {
				return src, ms
			}
			if tt := v.tableOf(tgt); tt != nil {
				next = append(next, tt.Targets(rel)...)
			}
		}
		frontier = next
	}
	return 0, nil
}

// checkTable matches a term against an already bound table: self first,
// then the nearest up source when the traversal allows it.
//
// selfSrc is the source reported for self matches (0 for $this, the entity
// for variable and fixed sources).
func checkTable(v view, t *store.Table, term *queryir.Term, pattern ir.Id, selfSrc ir.Entity) []match {
	if t == nil {
		return nil
	}
	if term.Trav.HasSelf() {
		if ms := selfMatches(t, pattern, selfSrc); ms != nil {
			return ms
		}
	}
	if !upEnabled(v, term) {
		return nil
	}
	_, ms := resolveUp(v, t, term.Rel, pattern)
	return ms
}

// upEnabled reports whether term can match through its relationship. A
// relationship no entity uses yields no up matches, so the walk is skipped.
// A relationship without the Traversable flag is never walked, even once
// data uses it.
func upEnabled(v view, term *queryir.Term) bool {
	return term.Trav.HasUp() && term.Rel != 0 &&
		v.relationshipUsed(term.Rel) && v.isTraversable(term.Rel)
}
