package engine

import (
	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// view is the read surface of the store used by evaluation.
//
// Every store read made while producing rows goes through a view, so the
// cache can record what a segment depended on.
type view interface {
	tables() []*store.Table
	tablesWith(pattern ir.Id) []*store.Table
	entities(t *store.Table) []ir.Entity
	tableOf(e ir.Entity) *store.Table
	isAlive(e ir.Entity) bool
	relationshipUsed(rel ir.Entity) bool
	isTraversable(rel ir.Entity) bool
}

// worldView reads the store directly.
type worldView struct {
	w *store.World
}

func (v worldView) tables() []*store.Table { return v.w.Tables() }
func (v worldView) tablesWith(p ir.Id) []*store.Table { return v.w.TablesWith(p) }
func (v worldView) entities(t *store.Table) []ir.Entity { return t.Entities() }
func (v worldView) tableOf(e ir.Entity) *store.Table { return v.w.TableOf(e) }
func (v worldView) isAlive(e ir.Entity) bool { return v.w.IsAlive(e) }
func (v worldView) relationshipUsed(rel ir.Entity) bool { return v.w.RelationshipUsed(rel) }
func (v worldView) isTraversable(rel ir.Entity) bool { return v.w.IsTraversable(rel) }

// deps is the set of store facts a cache segment was computed from.
//
// INVARIANTS:
//   - A segment is valid as long as no event touches one of its deps
//   - rels records the RelationshipUsed answer observed at evaluation time
type deps struct {
	allTables bool
	patterns  map[ir.Id]bool
	tables    map[store.TableID]bool
	entities  map[ir.Entity]bool
	rels      map[ir.Entity]bool
}

func newDeps() *deps {
	return &deps{
		patterns: make(map[ir.Id]bool),
		tables:   make(map[store.TableID]bool),
		entities: make(map[ir.Entity]bool),
		rels:     make(map[ir.Entity]bool),
	}
}

// touchedBy reports whether ev may change a result computed from d.
// used answers RelationshipUsed against the current store.
func (d *deps) touchedBy(ev store.Event, used func(ir.Entity) bool) bool {
	switch ev.Kind {
	case store.EventTableCreated, store.EventTableDeleted:
		if d.allTables || d.tables[ev.Table.ID()] {
			return true
		}
		for p := range d.patterns {
			if ev.Table.HasMatch(p) {
				return true
			}
		}
	case store.EventEntityMoved:
		return d.entities[ev.Entity] || d.tables[ev.From] || d.tables[ev.To]
	case store.EventEdgeAdded, store.EventEdgeRemoved:
		if seen, ok := d.rels[ev.Rel]; ok && seen != used(ev.Rel) {
			return true
		}
		return d.entities[ev.Entity]
	}
	return false
}

// recordingView forwards to a worldView and records every read into deps.
type recordingView struct {
	worldView
	d *deps
}

func (v recordingView) tables() []*store.Table {
	v.d.allTables = true
	return v.worldView.tables()
}

func (v recordingView) tablesWith(p ir.Id) []*store.Table {
	v.d.patterns[p] = true
	return v.worldView.tablesWith(p)
}

func (v recordingView) entities(t *store.Table) []ir.Entity {
	v.d.tables[t.ID()] = true
	return v.worldView.entities(t)
}

func (v recordingView) tableOf(e ir.Entity) *store.Table {
	v.d.entities[e] = true
	return v.worldView.tableOf(e)
}

func (v recordingView) isAlive(e ir.Entity) bool {
	v.d.entities[e] = true
	return v.worldView.isAlive(e)
}

func (v recordingView) relationshipUsed(rel ir.Entity) bool {
	used := v.worldView.relationshipUsed(rel)
	v.d.rels[rel] = used
	return used
}

// isTraversable depends on the table of rel: MarkTraversable moves it.
func (v recordingView) isTraversable(rel ir.Entity) bool {
	v.d.entities[rel] = true
	return v.worldView.isTraversable(rel)
}
