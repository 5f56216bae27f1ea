// Package journal persists world mutations and query runs in SQLite and
// replays them.
//
// A Recorder applies mutations to a store.World and writes one row per
// mutation, stamped with a logical seq. Query runs are written with the
// descriptor they ran (content-addressed by ir.QueryHash) and the hash of
// the rows they produced.
//
// # Replay
//
// Replay rebuilds a fresh world from the mutations and reruns every logged
// run at its seq position. Entity allocation is deterministic, so the
// replayed world allocates the same entities and creates the same tables,
// and a run reproduces iff its rows hash matches.
//
// # Ordering
//
// Reads are ordered by seq ASC so replays are reproducible. Seqs are unique
// across runs. Rewriting a mutation seq is a no-op; a new run id at a taken
// seq is rejected.
package journal
