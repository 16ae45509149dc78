// Package store provides the SQLite-backed persistence layer for hunt progress.
//
// The store holds:
//   - Runs: one row per hunt run with a nullable start marker
//   - Teams and Puzzles: registered entities (creation is administrative)
//   - Visibilities: current status per (team, puzzle), primary-keyed
//   - Visibility History: append-only log of successful transitions
//   - Team Properties: per-team canonical JSON values keyed by NFC key
//
// # Critical Patterns
//
// Conditional Writes:
//   - Every mutation is a single conditional statement inside one transaction
//   - Transitions: UPDATE ... WHERE status IN (antecedents), checked by rows affected
//   - Run start: UPDATE ... WHERE started_at IS NULL
//   - Properties: INSERT ... ON CONFLICT DO UPDATE ... WHERE value <> excluded.value
//
// Monotonic History:
//   - History timestamps never decrease for a (team, puzzle) pair, even if the
//     wall clock steps backwards between transitions
//   - Reads ORDER BY at_ns ASC, id ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Transactions take the write lock on BEGIN
package store
