package engine

import (
	"slices"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/store"
)

// wholeTable is the count of a row that covers every entity of its table.
// The entities of such a row are read when the row is consumed.
const wholeTable = -1

// row is one iteration result.
type row struct {
	table  *store.Table
	offset int
	count  int // number of entities, wholeTable, or 0 when $this is unused
	fields []Field
	vars   []ir.Entity
}

// frame is the binding state while a row is being built.
//
// table, offset and count describe the $this window; table is nil while
// $this is unbound. vars is indexed by slot; 0 means unbound.
type frame struct {
	table  *store.Table
	offset int
	count  int
	vars   []ir.Entity
	fields []Field
}

func newFrame(p *queryir.Plan) *frame {
	return &frame{
		vars:   make([]ir.Entity, len(p.Vars)),
		fields: make([]Field, p.FieldCount),
	}
}

// hit is one result of a term: a match plus what it binds.
type hit struct {
	// table binds $this when the term selected it.
	table *store.Table
	// entity binds the source variable when the term selected it.
	entity ir.Entity
	m      match
}

// evaluator runs a plan against a view with nested-loop joins.
//
// Steps are evaluated left to right. Every later step is restarted once per
// binding produced by earlier steps, and a row is emitted when the last step
// succeeds.
type evaluator struct {
	plan *queryir.Plan
	v    view

	// only restricts the $this select of step 0 to one owner table.
	only *store.Table

	emit func(row)
}

func (ev *evaluator) run(f *frame) {
	ev.step(0, f)
}

func (ev *evaluator) step(i int, f *frame) {
	if i == len(ev.plan.Steps) {
		ev.finish(f)
		return
	}
	next := func() { ev.step(i+1, f) }

	switch s := ev.plan.Steps[i].(type) {
	case *queryir.SelectAll:
		if f.table != nil {
			next()
			return
		}
		for _, t := range ev.v.tables() {
			if ev.passesThis(t) {
				f.bindTable(t)
				next()
				f.unbindTable()
			}
		}

	case *queryir.Match:
		ev.eachHit(i, &s.Term, f, func(h hit) bool {
			ev.apply(f, &s.Term, h, next)
			return true
		})

	case *queryir.Not:
		found := false
		ev.eachHit(i, &s.Term, f, func(h hit) bool {
			ev.apply(f, &s.Term, h, func() { found = true })
			return !found
		})
		if !found {
			ev.unset(f, &s.Term, next)
		}

	case *queryir.Optional:
		matched := false
		ev.eachHit(i, &s.Term, f, func(h hit) bool {
			if ev.apply(f, &s.Term, h, next) {
				matched = true
			}
			return true
		})
		if !matched {
			ev.unset(f, &s.Term, next)
		}

	case *queryir.Or:
		ev.or(i, s, f, next)
	}
}

// or evaluates an or-chain. When the chain's source is unbound, candidates
// are enumerated first and the chain is checked on each.
func (ev *evaluator) or(i int, s *queryir.Or, f *frame, next func()) {
	src := s.Terms[0].Src
	switch {
	case src.IsThis() && f.table == nil:
		for _, t := range ev.v.tables() {
			if ev.passesThis(t) {
				f.bindTable(t)
				ev.orMembers(i, s, f, next)
				f.unbindTable()
			}
		}
	case src.Kind == queryir.SourceVar && f.vars[src.Var] == 0:
		for _, t := range ev.v.tables() {
			if !ev.passesFilters(t) {
				continue
			}
			for _, e := range ev.v.entities(t) {
				f.vars[src.Var] = e
				ev.orMembers(i, s, f, next)
			}
		}
		f.vars[src.Var] = 0
	default:
		ev.orMembers(i, s, f, next)
	}
}

// orMembers tries the chain members in order. The first member with a
// match produces the rows; the fields of the other members are unset.
func (ev *evaluator) orMembers(i int, s *queryir.Or, f *frame, next func()) {
	saved := make([]Field, len(s.Terms))
	for k := range s.Terms {
		t := &s.Terms[k]
		saved[k] = f.fields[t.Field]
		f.fields[t.Field] = Field{ID: t.Pattern(f.vars)}
	}
	defer func() {
		for k := range s.Terms {
			f.fields[s.Terms[k].Field] = saved[k]
		}
	}()

	for k := range s.Terms {
		t := &s.Terms[k]
		matched := false
		ev.eachHit(i, t, f, func(h hit) bool {
			if ev.apply(f, t, h, next) {
				matched = true
			}
			return true
		})
		if matched {
			return
		}
	}
}

// eachHit enumerates the hits of term under the current bindings and calls
// fn for each until it returns false.
func (ev *evaluator) eachHit(i int, term *queryir.Term, f *frame, fn func(hit) bool) bool {
	pattern := term.Pattern(f.vars)

	switch term.Src.Kind {
	case queryir.SourceThis:
		if f.table != nil {
			for _, m := range checkTable(ev.v, f.table, term, pattern, 0) {
				if !fn(hit{m: m}) {
					return false
				}
			}
			return true
		}
		var only *store.Table
		if i == 0 {
			only = ev.only
		}
		return ev.selectTables(term, pattern, only, ev.passesThis, func(tm tableMatch) bool {
			for _, m := range tm.matches {
				if !fn(hit{table: tm.table, m: m}) {
					return false
				}
			}
			return true
		})

	case queryir.SourceVar:
		if e := f.vars[term.Src.Var]; e != 0 {
			return ev.checkEntity(term, pattern, e, fn)
		}
		return ev.selectTables(term, pattern, nil, ev.passesFilters, func(tm tableMatch) bool {
			for _, e := range ev.v.entities(tm.table) {
				for _, m := range tm.matches {
					if tm.self {
						m.src = e
					}
					if !fn(hit{entity: e, m: m}) {
						return false
					}
				}
			}
			return true
		})

	case queryir.SourceFixed:
		e := term.Src.Entity
		if e == 0 || !ev.v.isAlive(e) {
			return true
		}
		return ev.checkEntity(term, pattern, e, fn)
	}
	return true
}

// checkEntity matches term on a single bound entity. Self matches report
// the entity as their source.
func (ev *evaluator) checkEntity(term *queryir.Term, pattern ir.Id, e ir.Entity, fn func(hit) bool) bool {
	for _, m := range checkTable(ev.v, ev.v.tableOf(e), term, pattern, e) {
		if !fn(hit{m: m}) {
			return false
		}
	}
	return true
}

// apply binds h, runs next and restores the frame. It returns false without
// running next when h conflicts with a bound variable.
func (ev *evaluator) apply(f *frame, term *queryir.Term, h hit, next func()) bool {
	var set []int
	defer func() {
		for _, slot := range set {
			f.vars[slot] = 0
		}
	}()
	bind := func(slot int, value ir.Entity) bool {
		switch f.vars[slot] {
		case 0:
			f.vars[slot] = value
			set = append(set, slot)
			return true
		case value:
			return true
		}
		return false
	}

	if h.entity != 0 && !bind(term.Src.Var, h.entity) {
		return false
	}
	if term.FirstVar != queryir.NoVar && !bind(term.FirstVar, h.m.id.First) {
		return false
	}
	if term.SecondVar != queryir.NoVar && !bind(term.SecondVar, h.m.id.Second) {
		return false
	}

	if h.table != nil {
		f.bindTable(h.table)
		defer f.unbindTable()
	}
	saved := f.fields[term.Field]
	f.fields[term.Field] = Field{ID: h.m.id, Src: h.m.src, Set: true}
	next()
	f.fields[term.Field] = saved
	return true
}

// unset runs next with the field of term reported as not set.
func (ev *evaluator) unset(f *frame, term *queryir.Term, next func()) {
	saved := f.fields[term.Field]
	f.fields[term.Field] = Field{ID: term.Pattern(f.vars)}
	next()
	f.fields[term.Field] = saved
}

// finish emits the current binding as a row.
func (ev *evaluator) finish(f *frame) {
	for _, v := range ev.plan.Vars {
		if !v.Required {
			continue
		}
		bound := f.vars[v.Slot] != 0
		if v.Slot == queryir.ThisSlot {
			bound = f.table != nil
		}
		if !bound {
			panic(NewUnboundVariableError(ev.plan.Name, v.Name))
		}
	}

	r := row{
		table:  f.table,
		offset: f.offset,
		count:  f.count,
		fields: slices.Clone(f.fields),
		vars:   slices.Clone(f.vars),
	}
	if f.table == nil {
		r.count = 0
	}
	ev.emit(r)
}

// passesFilters reports whether t may appear in results: prefab and
// disabled tables are excluded unless the query names them.
func (ev *evaluator) passesFilters(t *store.Table) bool {
	if !t.Alive() {
		return false
	}
	if t.IsPrefab() && !ev.plan.MatchPrefab {
		return false
	}
	if t.IsDisabled() && !ev.plan.MatchDisabled {
		return false
	}
	return true
}

// passesThis applies the table filters for $this, which also skip empty
// tables unless the query matches them.
func (ev *evaluator) passesThis(t *store.Table) bool {
	if !ev.passesFilters(t) {
		return false
	}
	return ev.plan.MatchEmptyTables || len(ev.v.entities(t)) > 0
}

func (f *frame) bindTable(t *store.Table) {
	f.table = t
	f.offset = 0
	f.count = wholeTable
}

func (f *frame) unbindTable() {
	f.table = nil
	f.offset = 0
	f.count = 0
}
