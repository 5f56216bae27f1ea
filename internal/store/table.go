package store

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/lineage/internal/ir"
)

// TableID identifies a table. Ids are assigned in creation order starting
// at 1 and are never reused.
type TableID uint32

// Table is an archetype: the set of entities sharing one exact id set.
//
// The type is immutable after creation. Entities are kept in row order;
// removing an entity moves the last row into its slot.
type Table struct {
	id       TableID
	typ      []ir.Id
	entities []ir.Entity
	alive    bool
	prefab   bool
	disabled bool
}

func newTable(id TableID, typ []ir.Id) *Table {
	t := &Table{id: id, typ: typ, alive: true}
	t.prefab = t.Has(ir.Plain(ir.Prefab))
	t.disabled = t.Has(ir.Plain(ir.Disabled))
	return t
}

// ID returns the table id.
func (t *Table) ID() TableID { return t.id }

// Type returns the sorted id set of the table. Must not be modified.
func (t *Table) Type() []ir.Id { return t.typ }

// Entities returns the live row slice. Must not be modified, and is only
// valid until the next structural change of the table.
func (t *Table) Entities() []ir.Entity { return t.entities }

// Count returns the number of entities in the table.
func (t *Table) Count() int { return len(t.entities) }

// Alive reports whether the table has not been deleted.
func (t *Table) Alive() bool { return t.alive }

// IsPrefab reports whether the table holds Prefab entities.
func (t *Table) IsPrefab() bool { return t.prefab }

// IsDisabled reports whether the table holds Disabled entities.
func (t *Table) IsDisabled() bool { return t.disabled }

// Has reports whether the table type contains id exactly.
func (t *Table) Has(id ir.Id) bool {
	_, found := slices.BinarySearchFunc(t.typ, id, compareIds)
	return found
}

// Match returns the ids of the table type matching pattern, in type order.
func (t *Table) Match(pattern ir.Id) []ir.Id {
	if !pattern.IsWildcard() {
		if t.Has(pattern) {
			return []ir.Id{pattern}
		}
		return nil
	}
	var out []ir.Id
	for _, id := range t.typ {
		if id.Matches(pattern) {
			out = append(out, id)
		}
	}
	return out
}

// HasMatch reports whether any id of the table matches pattern.
func (t *Table) HasMatch(pattern ir.Id) bool {
	if !pattern.IsWildcard() {
		return t.Has(pattern)
	}
	for _, id := range t.typ {
		if id.Matches(pattern) {
			return true
		}
	}
	return false
}

// Targets returns the targets of every (rel, *) pair in the type, in type
// order.
func (t *Table) Targets(rel ir.Entity) []ir.Entity {
	var out []ir.Entity
	for _, id := range t.typ {
		if id.IsPair() && id.First == rel {
			out = append(out, id.Second)
		}
	}
	return out
}

// References reports whether any id of the type mentions e.
func (t *Table) References(e ir.Entity) bool {
	for _, id := range t.typ {
		if id.References(e) {
			return true
		}
	}
	return false
}

// String renders the table as "T<id>[ids...]".
func (t *Table) String() string {
	parts := make([]string, len(t.typ))
	for i, id := range t.typ {
		parts[i] = id.String()
	}
	return "T" + strconv.FormatUint(uint64(t.id), 10) + "[" + strings.Join(parts, " ") + "]"
}

// appendRow adds e as the last row and returns its row index.
func (t *Table) appendRow(e ir.Entity) int {
	t.entities = append(t.entities, e)
	return len(t.entities) - 1
}

// removeRow swap-removes row and returns the entity that moved into it,
// or 0 if row was the last row.
func (t *Table) removeRow(row int) ir.Entity {
	last := len(t.entities) - 1
	var moved ir.Entity
	if row != last {
		moved = t.entities[last]
		t.entities[row] = moved
	}
	t.entities[last] = 0
	t.entities = t.entities[:last]
	return moved
}

func compareIds(a, b ir.Id) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

// typeKey builds the table lookup key for a sorted type.
func typeKey(typ []ir.Id) string {
	var b strings.Builder
	for _, id := range typ {
		b.WriteString(strconv.FormatUint(uint64(id.First), 16))
		b.WriteByte(',')
		b.WriteString(strconv.FormatUint(uint64(id.Second), 16))
		b.WriteByte(';')
	}
	return b.String()
}

// indexKeys returns the id-index keys a table type is registered under:
// every exact id plus its wildcard forms.
func indexKeys(typ []ir.Id) []ir.Id {
	keys := make([]ir.Id, 0, len(typ)*3)
	seen := make(map[ir.Id]bool, len(typ)*3)
	add := func(id ir.Id) {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id)
		}
	}
	for _, id := range typ {
		add(id)
		if id.IsPair() {
			add(ir.Pair(id.First, ir.Wildcard))
			add(ir.Pair(ir.Wildcard, id.Second))
			add(ir.Pair(ir.Wildcard, ir.Wildcard))
		} else {
			add(ir.Plain(ir.Wildcard))
		}
	}
	return keys
}
