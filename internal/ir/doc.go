// Package ir provides the foundational value types for lineage.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the bottom layer with
// no circular dependencies.
//
// Key types:
//   - Entity: 64-bit id, low 32 bits index, high 32 bits generation
//   - Id: plain id or (relationship, target) pair, wildcards in patterns only
//   - TermDesc / QueryDesc: pre-parsed query input consumed by the compiler
//
// Canonical JSON (MarshalCanonical) and the domain-separated hashes in
// hash.go give queries and iteration traces a stable identity for golden
// files and journal replay.
package ir
