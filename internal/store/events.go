package store

import (
	"fmt"

	"github.com/roach88/lineage/internal/ir"
)

// EventKind distinguishes mutation notifications.
type EventKind int

const (
	// EventTableCreated is emitted after a table is created.
	EventTableCreated EventKind = iota + 1
	// EventTableDeleted is emitted after a table is deleted.
	EventTableDeleted
	// EventEntityMoved is emitted after an entity changes table. From or To
	// is zero when the entity had or has no table.
	EventEntityMoved
	// EventEdgeAdded is emitted after a pair (Rel, Tgt) is added to Entity.
	EventEdgeAdded
	// EventEdgeRemoved is emitted after a pair (Rel, Tgt) is removed from Entity.
	EventEdgeRemoved
	// EventEntityNamed is emitted after an entity name is set or cleared.
	EventEntityNamed
)

var eventKindNames = map[EventKind]string{
	EventTableCreated: "table_created",
	EventTableDeleted: "table_deleted",
	EventEntityMoved:  "entity_moved",
	EventEdgeAdded:    "edge_added",
	EventEdgeRemoved:  "edge_removed",
	EventEntityNamed:  "entity_named",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a synchronous mutation notification.
//
// Fields are populated per kind:
//   - TableCreated, TableDeleted: Table
//   - EntityMoved: Entity, From, To
//   - EdgeAdded, EdgeRemoved: Entity (source), Rel, Tgt
//   - EntityNamed: Entity, Name (old and new names are both reported as
//     separate events when a name changes)
type Event struct {
	Kind   EventKind
	Table  *Table
	Entity ir.Entity
	From   TableID
	To     TableID
	Rel    ir.Entity
	Tgt    ir.Entity
	Name   string
}

// Observer receives mutation notifications at the point of mutation.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) {
	f(ev)
}

type subscription struct {
	id  int
	obs Observer
}

// Subscribe registers obs for mutation notifications and returns a function
// that removes the registration. Observers are notified in registration
// order.
func (w *World) Subscribe(obs Observer) (unsubscribe func()) {
	w.nextSubID++
	id := w.nextSubID
	w.observers = append(w.observers, subscription{id: id, obs: obs})
	return func() {
		for i, s := range w.observers {
			if s.id == id {
				w.observers = append(w.observers[:i:i], w.observers[i+1:]...)
				return
			}
		}
	}
}

func (w *World) emit(ev Event) {
	for _, s := range w.observers {
		s.obs.OnEvent(ev)
	}
}
