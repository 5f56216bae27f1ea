// Package edge maintains the bidirectional adjacency index for traversable
// relationships.
//
// For every relationship R, each entity E holding the pair (R, T) contributes
// the directed edge E→T. The index answers "up one step" (TargetsOf) and
// "down one step" (SourcesOf) in insertion order.
//
// INVARIANTS:
//   - Adjacency lists never contain duplicates
//   - TargetsOf and SourcesOf return edges in insertion order
//   - Unknown entities yield empty results, never errors
package edge

import (
	"slices"

	"github.com/roach88/lineage/internal/ir"
)

// Edge is a single (rel, src → tgt) edge.
type Edge struct {
	Rel ir.Entity
	Src ir.Entity
	Tgt ir.Entity
}

// relEdges is the adjacency for one relationship.
type relEdges struct {
	up    map[ir.Entity][]ir.Entity // source → targets
	down  map[ir.Entity][]ir.Entity // target → sources
	count int
}

// Index is the relationship-edge index.
//
// Not safe for concurrent mutation; the store serializes writes.
type Index struct {
	rels map[ir.Entity]*relEdges
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{rels: make(map[ir.Entity]*relEdges)}
}

// Add records the edge src→tgt for rel.
// Returns false if the edge already exists.
func (x *Index) Add(rel, src, tgt ir.Entity) bool {
	r := x.rels[rel]
	if r == nil {
		r = &relEdges{
			up:   make(map[ir.Entity][]ir.Entity),
			down: make(map[ir.Entity][]ir.Entity),
		}
		x.rels[rel] = r
	}
	if slices.Contains(r.up[src], tgt) {
		return false
	}
	r.up[src] = append(r.up[src], tgt)
	r.down[tgt] = append(r.down[tgt], src)
	r.count++
	return true
}

// Remove deletes the edge src→tgt for rel.
// Returns false if the edge does not exist.
func (x *Index) Remove(rel, src, tgt ir.Entity) bool {
	r := x.rels[rel]
	if r == nil {
		return false
	}
	i := slices.Index(r.up[src], tgt)
	if i < 0 {
		return false
	}
	r.up[src] = deleteAt(r.up[src], i)
	if len(r.up[src]) == 0 {
		delete(r.up, src)
	}
	if j := slices.Index(r.down[tgt], src); j >= 0 {
		r.down[tgt] = deleteAt(r.down[tgt], j)
		if len(r.down[tgt]) == 0 {
			delete(r.down, tgt)
		}
	}
	r.count--
	if r.count == 0 {
		delete(x.rels, rel)
	}
	return true
}

// TargetsOf returns the direct targets of e for rel in insertion order.
// The returned slice must not be modified.
func (x *Index) TargetsOf(rel, e ir.Entity) []ir.Entity {
	if r := x.rels[rel]; r != nil {
		return r.up[e]
	}
	return nil
}

// SourcesOf returns the direct sources of e for rel in insertion order.
// The returned slice must not be modified.
func (x *Index) SourcesOf(rel, e ir.Entity) []ir.Entity {
	if r := x.rels[rel]; r != nil {
		return r.down[e]
	}
	return nil
}

// Used reports whether any edge exists for rel.
func (x *Index) Used(rel ir.Entity) bool {
	return x.rels[rel] != nil
}

// Len returns the number of edges for rel.
func (x *Index) Len(rel ir.Entity) int {
	if r := x.rels[rel]; r != nil {
		return r.count
	}
	return 0
}

// Reaches reports whether to is reachable from from by following rel edges
// upward. A node reaches itself.
func (x *Index) Reaches(rel, from, to ir.Entity) bool {
	if from == to {
		return true
	}
	r := x.rels[rel]
	if r == nil {
		return false
	}
	visited := map[ir.Entity]bool{from: true}
	queue := []ir.Entity{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range r.up[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// RemoveEntity drops every edge that has e as source or target, across all
// relationships, and returns the removed edges. Edges where e is the source
// are listed before edges where e is the target.
func (x *Index) RemoveEntity(e ir.Entity) []Edge {
	var removed []Edge
	for _, rel := range x.relationships() {
		r := x.rels[rel]
		for _, tgt := range slices.Clone(r.up[e]) {
			x.Remove(rel, e, tgt)
			removed = append(removed, Edge{Rel: rel, Src: e, Tgt: tgt})
		}
		if r = x.rels[rel]; r == nil {
			continue
		}
		for _, src := range slices.Clone(r.down[e]) {
			x.Remove(rel, src, e)
			removed = append(removed, Edge{Rel: rel, Src: src, Tgt: e})
		}
	}
	return removed
}

// relationships returns the relationships with edges in ascending order.
func (x *Index) relationships() []ir.Entity {
	rels := make([]ir.Entity, 0, len(x.rels))
	for rel := range x.rels {
		rels = append(rels, rel)
	}
	slices.Sort(rels)
	return rels
}

func deleteAt(s []ir.Entity, i int) []ir.Entity {
	return slices.Delete(slices.Clone(s), i, i+1)
}
