package journal

import (
	"errors"
	"fmt"

	"github.com/roach88/lineage/internal/ir"
	"github.com/roach88/lineage/internal/store"
)

// ErrDiverged is returned when applying a journaled mutation does not
// reproduce the recorded outcome.
var ErrDiverged = errors.New("replay diverged from journal")

// Op is the kind of a journaled mutation.
type Op string

const (
	// OpNew creates Entity with Ids and an optional Name.
	OpNew Op = "new"
	// OpAdd adds the id (First, Second) to Entity.
	OpAdd Op = "add"
	// OpRemove removes the id (First, Second) from Entity.
	OpRemove Op = "remove"
	// OpDelete deletes Entity, with the store's cascade.
	OpDelete Op = "delete"
	// OpName sets the name of Entity; the empty name clears it.
	OpName Op = "name"
	// OpDeleteEmpty deletes every empty table.
	OpDeleteEmpty Op = "delete_empty"
)

// Valid reports whether op is a known mutation kind.
func (op Op) Valid() bool {
	switch op {
	case OpNew, OpAdd, OpRemove, OpDelete, OpName, OpDeleteEmpty:
		return true
	}
	return false
}

// Mutation is one journaled world mutation.
type Mutation struct {
	Seq    int64
	Op     Op
	Entity ir.Entity
	First  ir.Entity
	Second ir.Entity
	Name   string
	Ids    []ir.Id
}

// ID returns the id an add or remove mutation carries.
func (m Mutation) ID() ir.Id {
	return ir.Id{First: m.First, Second: m.Second}
}

func (m Mutation) String() string {
	switch m.Op {
	case OpNew:
		return fmt.Sprintf("%d new %s %q %v", m.Seq, m.Entity, m.Name, m.Ids)
	case OpAdd, OpRemove:
		return fmt.Sprintf("%d %s %s %s", m.Seq, m.Op, m.Entity, m.ID())
	case OpName:
		return fmt.Sprintf("%d name %s %q", m.Seq, m.Entity, m.Name)
	case OpDelete:
		return fmt.Sprintf("%d delete %s", m.Seq, m.Entity)
	}
	return fmt.Sprintf("%d %s", m.Seq, m.Op)
}

// Apply performs m on w.
//
// Entity allocation in a store is deterministic, so replaying the same
// mutations on a fresh store allocates the same entities; a "new" mutation
// that allocates a different entity fails with ErrDiverged.
func Apply(w *store.World, m Mutation) error {
	switch m.Op {
	case OpNew:
		e, err := w.NewWith(m.Ids...)
		if err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
		if e != m.Entity {
			return fmt.Errorf("apply %s: allocated %s: %w", m, e, ErrDiverged)
		}
		if m.Name != "" {
			if err := w.SetName(e, m.Name); err != nil {
				return fmt.Errorf("apply %s: %w", m, err)
			}
		}
	case OpAdd:
		if err := w.Add(m.Entity, m.ID()); err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
	case OpRemove:
		if err := w.Remove(m.Entity, m.ID()); err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
	case OpDelete:
		if err := w.Delete(m.Entity); err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
	case OpName:
		if err := w.SetName(m.Entity, m.Name); err != nil {
			return fmt.Errorf("apply %s: %w", m, err)
		}
	case OpDeleteEmpty:
		w.DeleteEmptyTables()
	default:
		return fmt.Errorf("apply mutation %d: unknown op %q", m.Seq, m.Op)
	}
	return nil
}
