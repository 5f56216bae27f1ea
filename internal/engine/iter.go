package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/store"
)

// Field is the result of one term in a row.
//
// ID is the concrete id matched, or the term id with bound variables
// substituted when the field is not set. Src is the entity holding the id;
// 0 means the id is on $this itself.
type Field struct {
	ID  ir.Id
	Src ir.Entity
	Set bool
}

// Iter is a single iteration over a query's rows.
//
// Rows are computed when Next is first called: SetVar must precede it. The
// entities of a row are read from the store when the row is visited, and
// rows whose table was deleted in the meantime are skipped.
//
// An Iter has a single owner and must not be shared between goroutines.
type Iter struct {
	q      *Query
	preset map[int]ir.Entity

	started bool
	done    bool
	rows    []row
	pos     int
}

// SetVar constrains a variable, by name, before iteration starts. Setting
// "this" restricts results to the row of one entity.
func (it *Iter) SetVar(name string, e ir.Entity) error {
	slot := it.q.plan.Slot(name)
	if slot < 0 {
		return fmt.Errorf("set var: query %q has no variable $%s", it.q.Name(), strings.TrimPrefix(name, "$"))
	}
	return it.SetVarAt(slot, e)
}

// SetVarAt constrains a variable by slot before iteration starts.
func (it *Iter) SetVarAt(slot int, e ir.Entity) error {
	if it.started {
		return fmt.Errorf("set var: iteration of query %q already started", it.q.Name())
	}
	if slot < 0 || slot >= len(it.q.plan.Vars) {
		return fmt.Errorf("set var: slot %d out of range", slot)
	}
	if e == 0 {
		delete(it.preset, slot)
		return nil
	}
	it.preset[slot] = e
	return nil
}

// Next advances to the next row. It returns false when the iteration is
// exhausted or finished.
func (it *Iter) Next() bool {
	if it.done {
		return false
	}
	if !it.started {
		it.start()
	}
	for it.pos+1 < len(it.rows) {
		it.pos++
		r := &it.rows[it.pos]
		if r.table != nil && !r.table.Alive() {
			continue
		}
		return true
	}
	it.Fini()
	return false
}

func (it *Iter) start() {
	it.started = true
	q := it.q
	if q.cache != nil && len(it.preset) == 0 {
		it.rows = q.cache.rows()
	} else {
		if q.cache != nil {
			q.logger.Debug("variables set on cached query, evaluating uncached", "query", q.Name())
		}
		it.rows = q.evaluate(it.preset)
	}
	q.tel.recordRows(len(it.rows), q.Cached())
	if q.checkRows {
		checkDuplicates(q.Name(), it.rows)
	}
}

// Fini ends the iteration early. Further calls to Next return false.
func (it *Iter) Fini() {
	it.done = true
	it.pos = len(it.rows)
}

func (it *Iter) current() *row {
	if !it.started || it.pos < 0 || it.pos >= len(it.rows) {
		return nil
	}
	return &it.rows[it.pos]
}

// Table returns the table of the current row, nil when the query has no
// $this term.
func (it *Iter) Table() *store.Table {
	if r := it.current(); r != nil {
		return r.table
	}
	return nil
}

// Offset returns the first row of the table covered by the current row.
func (it *Iter) Offset() int {
	if r := it.current(); r != nil {
		return r.offset
	}
	return 0
}

// Count returns the number of $this entities in the current row. Rows of
// queries without $this, and rows of empty tables, have count 0.
func (it *Iter) Count() int {
	return len(it.Entities())
}

// Entities returns the $this entities of the current row. The slice is
// owned by the store and is only valid until the next mutation.
func (it *Iter) Entities() []ir.Entity {
	r := it.current()
	if r == nil || r.table == nil {
		return nil
	}
	return window(r)
}

func window(r *row) []ir.Entity {
	all := r.table.Entities()
	if r.count == wholeTable {
		return all
	}
	if r.offset < 0 || r.offset >= len(all) {
		return nil
	}
	end := min(r.offset+r.count, len(all))
	return all[r.offset:end]
}

// Field returns field i of the current row.
func (it *Iter) Field(i int) Field {
	r := it.current()
	if r == nil || i < 0 || i >= len(r.fields) {
		return Field{}
	}
	return r.fields[i]
}

// FieldID returns the id matched by field i.
func (it *Iter) FieldID(i int) ir.Id { return it.Field(i).ID }

// FieldSrc returns the source of field i: 0 when the id is on $this.
func (it *Iter) FieldSrc(i int) ir.Entity { return it.Field(i).Src }

// FieldIsSet reports whether field i matched. Fields of not terms, of
// optional terms without a match and of losing or-chain members are unset.
func (it *Iter) FieldIsSet(i int) bool { return it.Field(i).Set }

// Var returns the value of a variable in the current row. $this has a
// value only when the row covers exactly one entity.
func (it *Iter) Var(name string) ir.Entity {
	return it.VarAt(it.q.plan.Slot(name))
}

// VarAt returns the value of the variable in slot.
func (it *Iter) VarAt(slot int) ir.Entity {
	r := it.current()
	if r == nil || slot < 0 || slot >= len(r.vars) {
		return 0
	}
	if slot == queryir.ThisSlot {
		if ents := it.Entities(); len(ents) == 1 {
			return ents[0]
		}
		return 0
	}
	return r.vars[slot]
}

// Row is a materialized row, detached from the store.
type Row struct {
	Table    store.TableID
	Entities []ir.Entity
	Fields   []Field
	// Vars maps variable names, $this excluded, to their values.
	Vars map[string]ir.Entity
}

// Row materializes the current row.
func (it *Iter) Row() Row {
	r := it.current()
	if r == nil {
		return Row{}
	}
	out := Row{
		Fields: append([]Field(nil), r.fields...),
		Vars:   make(map[string]ir.Entity),
	}
	if r.table != nil {
		out.Table = r.table.ID()
		out.Entities = append([]ir.Entity(nil), window(r)...)
	}
	for _, v := range it.q.plan.Vars {
		if v.Slot != queryir.ThisSlot {
			out.Vars[v.Name] = r.vars[v.Slot]
		}
	}
	return out
}

// Collect drains it and returns every row.
func Collect(it *Iter) []Row {
	var rows []Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows
}

// String renders the row with entity ids.
func (r Row) String() string {
	return r.Format(nil)
}

// Format renders the row as
//
//	T<table> [entities] | field; field | $var=value
//
// where a set field is "id" or "id<-src" and an unset field is "!id".
// label names entities; nil uses their ids.
func (r Row) Format(label func(ir.Entity) string) string {
	if label == nil {
		label = func(e ir.Entity) string { return ir.Plain(e).String() }
	}
	var b strings.Builder
	if r.Table != 0 {
		fmt.Fprintf(&b, "T%d ", r.Table)
	}
	ents := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		ents[i] = label(e)
	}
	b.WriteString("[" + strings.Join(ents, " ") + "]")

	fields := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		id := formatID(f.ID, label)
		switch {
		case !f.Set:
			fields[i] = "!" + id
		case f.Src != 0:
			fields[i] = id + "<-" + label(f.Src)
		default:
			fields[i] = id
		}
	}
	b.WriteString(" | " + strings.Join(fields, "; "))

	if len(r.Vars) > 0 {
		names := make([]string, 0, len(r.Vars))
		for name := range r.Vars {
			names = append(names, name)
		}
		slices.Sort(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = "$" + name + "=" + label(r.Vars[name])
		}
		b.WriteString(" | " + strings.Join(parts, " "))
	}
	return b.String()
}

// Canonical returns the row as a value accepted by ir.MarshalCanonical.
func (r Row) Canonical() map[string]any {
	ents := make([]any, len(r.Entities))
	for i, e := range r.Entities {
		ents[i] = e
	}
	fields := make([]any, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = map[string]any{
			"first":  f.ID.First,
			"second": f.ID.Second,
			"src":    f.Src,
			"set":    f.Set,
		}
	}
	vars := make(map[string]any, len(r.Vars))
	for name, e := range r.Vars {
		vars[name] = e
	}
	return map[string]any{
		"table":    uint32(r.Table),
		"entities": ents,
		"fields":   fields,
		"vars":     vars,
	}
}

func formatID(id ir.Id, label func(ir.Entity) string) string {
	slot := func(e ir.Entity) string {
		if e == ir.Wildcard {
			return "*"
		}
		return label(e)
	}
	if !id.IsPair() {
		return slot(id.First)
	}
	return "(" + slot(id.First) + "," + slot(id.Second) + ")"
}
