package ir

import (
	"fmt"
	"strconv"
)

// Entity is an opaque 64-bit identifier.
//
// The low 32 bits hold the slot index, the high 32 bits hold the generation.
// When a slot is recycled its generation is bumped, so ids held from before
// the delete stop comparing equal to the live entity.
type Entity uint64

// MakeEntity builds an entity id from an index and a generation.
func MakeEntity(index, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

// Index returns the slot index of the entity.
func (e Entity) Index() uint32 {
	return uint32(e)
}

// Generation returns the recycle generation of the entity.
func (e Entity) Generation() uint32 {
	return uint32(e >> 32)
}

// String renders the entity as "#index" or "#index.gen" when recycled.
func (e Entity) String() string {
	if e == 0 {
		return "0"
	}
	if e.Generation() == 0 {
		return "#" + strconv.FormatUint(uint64(e.Index()), 10)
	}
	return fmt.Sprintf("#%d.%d", e.Index(), e.Generation())
}

// Builtin entities. Every store reserves these slots at creation, in this
// order, before any user entity is allocated.
const (
	// Wildcard matches any entity in a pattern. It is never stored on a table.
	Wildcard Entity = iota + 1
	// ChildOf is the hierarchy relationship. Traversable.
	ChildOf
	// IsA is the inheritance relationship. Traversable.
	IsA
	// Traversable marks a relationship as eligible for up traversal.
	Traversable
	// Prefab marks template entities; excluded from results by default.
	Prefab
	// Disabled marks disabled entities; excluded from results by default.
	Disabled

	// FirstUserEntity is the first index handed out for user entities.
	FirstUserEntity
)

// BuiltinNames maps builtin entities to their reserved names.
var BuiltinNames = map[Entity]string{
	Wildcard:    "*",
	ChildOf:     "ChildOf",
	IsA:         "IsA",
	Traversable: "Traversable",
	Prefab:      "Prefab",
	Disabled:    "Disabled",
}

// Id is either a plain component/tag id or a (relationship, target) pair.
//
// A plain id has Second == 0. Either slot of a pair may be Wildcard in a
// pattern; stored ids never contain wildcards.
type Id struct {
	First  Entity `json:"first"`
	Second Entity `json:"second,omitempty"`
}

// Plain returns the id for a component or tag entity.
func Plain(e Entity) Id {
	return Id{First: e}
}

// Pair returns the pair id (rel, target).
func Pair(rel, target Entity) Id {
	return Id{First: rel, Second: target}
}

// IsZero reports whether the id is unset.
func (id Id) IsZero() bool {
	return id.First == 0 && id.Second == 0
}

// IsPair reports whether the id is a relationship pair.
func (id Id) IsPair() bool {
	return id.Second != 0
}

// Rel returns the relationship of a pair, or the plain entity.
func (id Id) Rel() Entity {
	return id.First
}

// Target returns the target of a pair, zero for plain ids.
func (id Id) Target() Entity {
	return id.Second
}

// IsWildcard reports whether either slot is a wildcard.
func (id Id) IsWildcard() bool {
	return id.First == Wildcard || id.Second == Wildcard
}

// Matches reports whether the concrete id matches pattern.
// A wildcard slot in pattern matches any value in the same slot, but a pair
// pattern never matches a plain id.
func (id Id) Matches(pattern Id) bool {
	if pattern.IsPair() != id.IsPair() {
		return false
	}
	if pattern.First != Wildcard && pattern.First != id.First {
		return false
	}
	if pattern.IsPair() && pattern.Second != Wildcard && pattern.Second != id.Second {
		return false
	}
	return true
}

// References reports whether e appears in either slot of the id.
func (id Id) References(e Entity) bool {
	return id.First == e || id.Second == e
}

// Less orders ids by first slot then second slot. Table types are kept in
// this order.
func (id Id) Less(other Id) bool {
	if id.First != other.First {
		return id.First < other.First
	}
	return id.Second < other.Second
}

// String renders the id as "e" or "(rel,target)".
func (id Id) String() string {
	if !id.IsPair() {
		return entityLabel(id.First)
	}
	return "(" + entityLabel(id.First) + "," + entityLabel(id.Second) + ")"
}

func entityLabel(e Entity) string {
	if name, ok := BuiltinNames[e]; ok {
		return name
	}
	return e.String()
}
