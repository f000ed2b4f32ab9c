// Package registry implements the consistency coordination engine: it
// tracks keys with per-key consistency levels, detects and resolves
// version conflicts, grants expiring exclusive locks, and schedules
// reconciliation work through a bounded-concurrency queue.
//
// The Registry is the single owner of per-key state. Updates flow in
// through RecordUpdate; the configured consistency level decides whether
// reconciliation is immediate (STRONG), cascades to dependencies (CAUSAL,
// QUANTUM), or waits for the periodic tick (EVENTUAL). Divergent versions
// open at most one Conflict per key, resolved automatically per the key's
// strategy or manually via ResolveConflict.
package registry
