package store

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lineage/internal/edge"
	"github.com/roach88/lineage/internal/ir"
)

// Sentinel errors returned (wrapped) by World mutations.
var (
	ErrNotAlive  = errors.New("entity is not alive")
	ErrWildcard  = errors.New("wildcard ids cannot be stored")
	ErrInvalidID = errors.New("invalid id")
	ErrCycle     = errors.New("relationship cycle")
	ErrBuiltin   = errors.New("builtin entities cannot be deleted")
	ErrNameTaken = errors.New("name already in use")
)

// IsCycleError reports whether err was caused by a rejected relationship
// cycle.
func IsCycleError(err error) bool {
	return errors.Is(err, ErrCycle)
}

type slot struct {
	gen   uint32
	alive bool
	table *Table
	row   int
	name  string
}

// World is the in-memory archetype store.
//
// Entities are grouped into tables by exact id set. Every pair added to an
// entity is also recorded in the relationship-edge index. Mutations notify
// subscribed observers synchronously.
//
// Not safe for concurrent use.
type World struct {
	logger *slog.Logger

	slots  []slot // index 0 is never used
	free   []uint32
	tables []*Table // every table ever created, by id-1
	byType map[string]*Table
	index  map[ir.Id][]*Table // id (and wildcard forms) → tables in creation order
	edges  *edge.Index
	names  map[string]ir.Entity

	observers []subscription
	nextSubID int
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the logger used for structural diagnostics.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *World) {
		w.logger = l
	}
}

// NewWorld creates a store with the builtin entities allocated.
func NewWorld(opts ...Option) *World {
	w := &World{
		logger: slog.Default(),
		slots:  make([]slot, 1, 64),
		byType: make(map[string]*Table),
		index:  make(map[ir.Id][]*Table),
		edges:  edge.NewIndex(),
		names:  make(map[string]ir.Entity),
	}
	for _, opt := range opts {
		opt(w)
	}

	for e := ir.Wildcard; e < ir.FirstUserEntity; e++ {
		got := w.alloc()
		w.slots[got.Index()].name = ir.BuiltinNames[e]
		w.names[ir.BuiltinNames[e]] = got
	}
	for _, rel := range []ir.Entity{ir.ChildOf, ir.IsA} {
		if err := w.Add(rel, ir.Plain(ir.Traversable)); err != nil {
			panic(fmt.Sprintf("store: bootstrap builtin %s: %v", rel, err))
		}
	}
	return w
}

func (w *World) alloc() ir.Entity {
	if n := len(w.free); n > 0 {
		idx := w.free[n-1]
		w.free = w.free[:n-1]
		s := &w.slots[idx]
		s.alive = true
		s.table = nil
		s.row = -1
		return ir.MakeEntity(idx, s.gen)
	}
	w.slots = append(w.slots, slot{alive: true, row: -1})
	return ir.MakeEntity(uint32(len(w.slots)-1), 0)
}

// NewEntity allocates an entity with no ids. Freed indices are recycled
// with a bumped generation.
func (w *World) NewEntity() ir.Entity {
	return w.alloc()
}

// NewNamed allocates an entity and assigns it a name.
func (w *World) NewNamed(name string) (ir.Entity, error) {
	if existing := w.Lookup(name); existing != 0 {
		return 0, fmt.Errorf("new entity %q: %w", name, ErrNameTaken)
	}
	e := w.alloc()
	if err := w.SetName(e, name); err != nil {
		return 0, err
	}
	return e, nil
}

// NewWith allocates an entity and places it directly in the table for ids,
// without creating the intermediate tables a sequence of Add calls would.
func (w *World) NewWith(ids ...ir.Id) (ir.Entity, error) {
	e := w.alloc()
	var typ []ir.Id
	for _, id := range ids {
		if err := w.checkAdd(e, id); err != nil {
			w.free = append(w.free, w.release(e))
			return 0, fmt.Errorf("new entity with %s: %w", id, err)
		}
		i, found := slices.BinarySearchFunc(typ, id, compareIds)
		if !found {
			typ = slices.Insert(typ, i, id)
		}
	}
	w.moveTo(e, w.ensureTable(typ))
	for _, id := range typ {
		if id.IsPair() && w.edges.Add(id.First, e, id.Second) {
			w.emit(Event{Kind: EventEdgeAdded, Entity: e, Rel: id.First, Tgt: id.Second})
		}
	}
	return e, nil
}

// release marks the slot of e dead and returns its index.
func (w *World) release(e ir.Entity) uint32 {
	s := &w.slots[e.Index()]
	s.alive = false
	s.gen++
	return e.Index()
}

// IsAlive reports whether e is the current occupant of its slot.
func (w *World) IsAlive(e ir.Entity) bool {
	if e == 0 {
		return false
	}
	idx := e.Index()
	if int(idx) >= len(w.slots) {
		return false
	}
	s := &w.slots[idx]
	return s.alive && s.gen == e.Generation()
}

// Add adds id to e, moving e to the matching table.
//
// Adding an id e already has is a no-op. Adding a pair of a traversable
// relationship that would create a self-edge or a cycle fails with ErrCycle.
func (w *World) Add(e ir.Entity, id ir.Id) error {
	if err := w.checkAdd(e, id); err != nil {
		return fmt.Errorf("add %s to %s: %w", id, e, err)
	}
	s := &w.slots[e.Index()]
	if s.table != nil && s.table.Has(id) {
		return nil
	}

	var typ []ir.Id
	if s.table != nil {
		typ = s.table.typ
	}
	i, _ := slices.BinarySearchFunc(typ, id, compareIds)
	next := slices.Insert(slices.Clone(typ), i, id)
	w.moveTo(e, w.ensureTable(next))

	if id.IsPair() && w.edges.Add(id.First, e, id.Second) {
		w.emit(Event{Kind: EventEdgeAdded, Entity: e, Rel: id.First, Tgt: id.Second})
	}
	return nil
}

func (w *World) checkAdd(e ir.Entity, id ir.Id) error {
	if !w.IsAlive(e) {
		return ErrNotAlive
	}
	if id.IsZero() {
		return ErrInvalidID
	}
	if id.IsWildcard() {
		return ErrWildcard
	}
	if !w.IsAlive(id.First) || (id.IsPair() && !w.IsAlive(id.Second)) {
		return ErrNotAlive
	}
	if id.IsPair() && w.IsTraversable(id.First) {
		if id.Second == e || w.edges.Reaches(id.First, id.Second, e) {
			return ErrCycle
		}
	}
	return nil
}

// AddPair adds the pair (rel, tgt) to e.
func (w *World) AddPair(e, rel, tgt ir.Entity) error {
	return w.Add(e, ir.Pair(rel, tgt))
}

// Remove removes id from e. Removing an id e does not have is a no-op.
func (w *World) Remove(e ir.Entity, id ir.Id) error {
	if !w.IsAlive(e) {
		return fmt.Errorf("remove %s from %s: %w", id, e, ErrNotAlive)
	}
	s := &w.slots[e.Index()]
	if s.table == nil || !s.table.Has(id) {
		return nil
	}
	next := slices.DeleteFunc(slices.Clone(s.table.typ), func(x ir.Id) bool { return x == id })
	w.moveTo(e, w.ensureTable(next))

	if id.IsPair() && w.edges.Remove(id.First, e, id.Second) {
		w.emit(Event{Kind: EventEdgeRemoved, Entity: e, Rel: id.First, Tgt: id.Second})
	}
	return nil
}

// MarkTraversable flags rel as eligible for up traversal.
func (w *World) MarkTraversable(rel ir.Entity) error {
	return w.Add(rel, ir.Plain(ir.Traversable))
}

// IsTraversable reports whether rel carries the Traversable flag.
func (w *World) IsTraversable(rel ir.Entity) bool {
	return w.Has(rel, ir.Plain(ir.Traversable))
}

// Has reports whether e has id exactly. Wildcard patterns match any id of
// the entity.
func (w *World) Has(e ir.Entity, id ir.Id) bool {
	t := w.TableOf(e)
	if t == nil {
		return false
	}
	return t.HasMatch(id)
}

// Type returns the id set of e, nil for dead or empty entities.
func (w *World) Type(e ir.Entity) []ir.Id {
	if t := w.TableOf(e); t != nil {
		return t.typ
	}
	return nil
}

// TableOf returns the table of e, nil when e is dead or has no ids.
func (w *World) TableOf(e ir.Entity) *Table {
	if !w.IsAlive(e) {
		return nil
	}
	return w.slots[e.Index()].table
}

// Table returns a live table by id, nil when unknown or deleted.
func (w *World) Table(id TableID) *Table {
	if id == 0 || int(id) > len(w.tables) {
		return nil
	}
	if t := w.tables[id-1]; t.alive {
		return t
	}
	return nil
}

// Tables returns the live tables in creation order.
func (w *World) Tables() []*Table {
	out := make([]*Table, 0, len(w.tables))
	for _, t := range w.tables {
		if t.alive {
			out = append(out, t)
		}
	}
	return out
}

// TablesWith returns the live tables having an id that matches pattern,
// in creation order. Supported wildcard forms are *, (R,*), (*,T) and (*,*).
// The returned slice must not be modified.
func (w *World) TablesWith(pattern ir.Id) []*Table {
	return w.index[pattern]
}

// TargetsOf returns the direct targets of e for rel in insertion order.
func (w *World) TargetsOf(rel, e ir.Entity) []ir.Entity {
	return w.edges.TargetsOf(rel, e)
}

// SourcesOf returns the entities holding (rel, e) in insertion order.
func (w *World) SourcesOf(rel, e ir.Entity) []ir.Entity {
	return w.edges.SourcesOf(rel, e)
}

// RelationshipUsed reports whether any entity holds a (rel, *) pair.
func (w *World) RelationshipUsed(rel ir.Entity) bool {
	return w.edges.Used(rel)
}

// Delete deletes e.
//
// Children holding (ChildOf, e) are deleted first, recursively. Every other
// id that references e is removed from its holders, and the tables whose
// type references e are deleted. The slot is then freed; its next occupant
// gets a bumped generation.
func (w *World) Delete(e ir.Entity) error {
	if !w.IsAlive(e) {
		return fmt.Errorf("delete %s: %w", e, ErrNotAlive)
	}
	if e.Index() < uint32(ir.FirstUserEntity) {
		return fmt.Errorf("delete %s: %w", e, ErrBuiltin)
	}
	w.logger.Debug("deleting entity", "entity", e.String())

	for _, child := range slices.Clone(w.edges.SourcesOf(ir.ChildOf, e)) {
		if !w.IsAlive(child) {
			continue
		}
		if err := w.Delete(child); err != nil {
			return fmt.Errorf("delete %s: cascade: %w", e, err)
		}
	}

	for _, t := range w.tablesReferencing(e) {
		w.stripReferences(t, e)
	}

	s := &w.slots[e.Index()]
	var pairs []ir.Id
	if s.table != nil {
		for _, id := range s.table.typ {
			if id.IsPair() {
				pairs = append(pairs, id)
			}
		}
	}
	w.moveTo(e, nil)
	for _, id := range pairs {
		if w.edges.Remove(id.First, e, id.Second) {
			w.emit(Event{Kind: EventEdgeRemoved, Entity: e, Rel: id.First, Tgt: id.Second})
		}
	}
	if old := s.name; old != "" {
		delete(w.names, old)
		s.name = ""
		w.emit(Event{Kind: EventEntityNamed, Entity: e, Name: old})
	}

	w.free = append(w.free, w.release(e))
	return nil
}

// tablesReferencing returns live tables whose type mentions e, in creation
// order.
func (w *World) tablesReferencing(e ir.Entity) []*Table {
	seen := make(map[TableID]bool)
	var out []*Table
	for _, key := range []ir.Id{ir.Plain(e), ir.Pair(e, ir.Wildcard), ir.Pair(ir.Wildcard, e)} {
		for _, t := range w.index[key] {
			if !seen[t.id] {
				seen[t.id] = true
				out = append(out, t)
			}
		}
	}
	slices.SortFunc(out, func(a, b *Table) int { return int(a.id) - int(b.id) })
	return out
}

// stripReferences moves every entity of t to the table without the ids that
// reference e, then deletes t.
func (w *World) stripReferences(t *Table, e ir.Entity) {
	var keep, dropped []ir.Id
	for _, id := range t.typ {
		if id.References(e) {
			dropped = append(dropped, id)
		} else {
			keep = append(keep, id)
		}
	}
	dst := w.ensureTable(keep)
	for _, h := range slices.Clone(t.entities) {
		w.moveTo(h, dst)
		for _, id := range dropped {
			if id.IsPair() && w.edges.Remove(id.First, h, id.Second) {
				w.emit(Event{Kind: EventEdgeRemoved, Entity: h, Rel: id.First, Tgt: id.Second})
			}
		}
	}
	w.deleteTable(t)
}

// DeleteEmptyTables deletes every live table without entities and returns
// how many were deleted.
func (w *World) DeleteEmptyTables() int {
	n := 0
	for _, t := range w.tables {
		if t.alive && t.Count() == 0 {
			w.deleteTable(t)
			n++
		}
	}
	if n > 0 {
		w.logger.Debug("deleted empty tables", "count", n)
	}
	return n
}

// SetName assigns a name to e. The empty name clears it. Names are NFC
// normalized and unique among live entities.
func (w *World) SetName(e ir.Entity, name string) error {
	if !w.IsAlive(e) {
		return fmt.Errorf("set name of %s: %w", e, ErrNotAlive)
	}
	name = normalizeName(name)
	if owner, ok := w.names[name]; ok && name != "" && owner != e {
		return fmt.Errorf("set name of %s to %q: %w", e, name, ErrNameTaken)
	}
	s := &w.slots[e.Index()]
	if s.name == name {
		return nil
	}
	if s.name != "" {
		delete(w.names, s.name)
		w.emit(Event{Kind: EventEntityNamed, Entity: e, Name: s.name})
	}
	s.name = name
	if name != "" {
		w.names[name] = e
		w.emit(Event{Kind: EventEntityNamed, Entity: e, Name: name})
	}
	return nil
}

// Name returns the name of e, empty when unnamed or dead.
func (w *World) Name(e ir.Entity) string {
	if !w.IsAlive(e) {
		return ""
	}
	return w.slots[e.Index()].name
}

// Lookup returns the live entity with the given name, 0 if none.
func (w *World) Lookup(name string) ir.Entity {
	return w.names[normalizeName(name)]
}

// Label returns the name of e, or its id string when unnamed.
func (w *World) Label(e ir.Entity) string {
	if name := w.Name(e); name != "" {
		return name
	}
	return e.String()
}

// EntityCount returns the number of live entities, builtins included.
func (w *World) EntityCount() int {
	return len(w.slots) - 1 - len(w.free)
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// moveTo moves e from its current table to dst (nil for no table).
func (w *World) moveTo(e ir.Entity, dst *Table) {
	s := &w.slots[e.Index()]
	src := s.table
	if src == dst {
		return
	}
	var from, to TableID
	if src != nil {
		from = src.id
		if moved := src.removeRow(s.row); moved != 0 {
			w.slots[moved.Index()].row = s.row
		}
	}
	s.row = -1
	if dst != nil {
		to = dst.id
		s.row = dst.appendRow(e)
	}
	s.table = dst
	w.emit(Event{Kind: EventEntityMoved, Entity: e, From: from, To: to})
}

// ensureTable returns the live table for typ, creating it when needed.
// The empty type has no table.
func (w *World) ensureTable(typ []ir.Id) *Table {
	if len(typ) == 0 {
		return nil
	}
	key := typeKey(typ)
	if t, ok := w.byType[key]; ok {
		return t
	}
	t := newTable(TableID(len(w.tables)+1), typ)
	w.tables = append(w.tables, t)
	w.byType[key] = t
	for _, k := range indexKeys(typ) {
		w.index[k] = append(w.index[k], t)
	}
	w.logger.Debug("table created", "table", t.String())
	w.emit(Event{Kind: EventTableCreated, Table: t})
	return t
}

func (w *World) deleteTable(t *Table) {
	if !t.alive {
		return
	}
	t.alive = false
	delete(w.byType, typeKey(t.typ))
	for _, k := range indexKeys(t.typ) {
		list := w.index[k]
		if i := slices.Index(list, t); i >= 0 {
			list = slices.Delete(slices.Clone(list), i, i+1)
		}
		if len(list) == 0 {
			delete(w.index, k)
		} else {
			w.index[k] = list
		}
	}
	w.logger.Debug("table deleted", "table", t.String())
	w.emit(Event{Kind: EventTableDeleted, Table: t})
}
