// Package store provides the in-memory archetype store queried by the engine.
//
// The store groups entities into tables by exact id set and keeps the
// relationship-edge index in sync with every pair add and remove.
//
// # Tables
//
//   - Table types are sorted id sets; a table is created the first time an
//     entity needs its type, and table ids increase in creation order
//   - TablesWith returns tables in creation order; this order is the base
//     of every iteration order in the engine
//   - Rows are swap-removed: removing an entity moves the last row into its
//     slot
//   - Entities with no ids have no table
//
// # Entities
//
//   - Entity ids carry a generation; deleting an entity bumps the generation
//     of its slot, so stale ids fail IsAlive after the slot is recycled
//   - Deleting an entity deletes its ChildOf children, removes every id that
//     references it from other entities, and deletes the tables whose type
//     referenced it
//   - Pairs of traversable relationships (ChildOf, IsA, or any relationship
//     with the Traversable flag) are rejected with ErrCycle when they would
//     make the relationship graph cyclic
//
// # Notifications
//
// Observers registered with Subscribe receive an Event synchronously after
// each structural change (table created/deleted, entity moved, edge
// added/removed, entity named). The engine cache is the main consumer.
package store
