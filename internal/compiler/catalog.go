package compiler

import "github.com/roach88/lineage/internal/ir"

// Catalog is the read-only view of the store the compiler needs. It is
// satisfied by *store.World.
//
// Compilation reads the catalog once; later store changes do not affect a
// compiled plan. Names in particular are resolved here and never tracked.
type Catalog interface {
	IsAlive(e ir.Entity) bool
	IsTraversable(rel ir.Entity) bool
	RelationshipUsed(rel ir.Entity) bool
	Lookup(name string) ir.Entity
}
