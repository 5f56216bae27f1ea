// Package queryir defines the compiled query plan shared by the term
// compiler and the query engine.
//
// A Plan is produced once by compiler.Compile and reused by every iteration
// of a query, cached or not. It is immutable after compilation.
//
// ARCHITECTURE:
//
//	[ir.QueryDesc] → compiler.Compile → [queryir.Plan] → engine (uncached eval)
//	                                                    → engine (cache segments)
//
// Both execution paths read the same plan, so they agree on variable slots,
// field indices and evaluation order by construction.
//
// SEALED INTERFACES:
//
// Step is a sealed interface using the marker method pattern. Only types in
// this package implement it, so the evaluator can switch exhaustively:
//
//	switch s := step.(type) {
//	case *Match:
//	case *Not:
//	case *Optional:
//	case *Or:
//	case *SelectAll:
//	}
//
// ORDERING:
//
// Steps are in evaluation order, which differs from declaration order only
// when Not/Optional terms were moved after the positive terms that write
// the variables they read. Term.Field always keeps the declaration index.
//
// INVARIANTS:
//   - Vars[0] is always "this"
//   - Term.Trav is never ir.TravDefault; Term.Rel is set whenever the
//     traversal includes up
//   - Variable slots of Term.Id hold ir.Wildcard
//   - Every field index in [0, FieldCount) appears in exactly one term
package queryir
