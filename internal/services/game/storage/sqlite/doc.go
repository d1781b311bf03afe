// Package sqlite implements the game storage contract on SQLite.
//
// Rooms are stored as single rows with the opaque state, roster, and metadata
// documents persisted as JSON text. Timestamps are millisecond UTC integers.
// Guarded updates rely on a version predicate in the UPDATE statement, so
// optimistic concurrency works without explicit row locks.
package sqlite
