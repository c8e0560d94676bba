// Package migrate provides versioned schema migrations for Strata.
//
// This package manages:
//   - Ordered, numbered migration scripts (NNN_description.up.sql /
//     NNN_description.down.sql) loaded from any fs.FS
//   - A persisted history table recording version, name, checksum,
//     applied-at timestamp and duration
//   - Forward migration to a target version, each script in its own
//     transaction
//   - Rollback in strictly descending version order
//   - Checksum verification of applied scripts against their sources
//
// # Ordering and atomicity
//
// Versions form a gapless ascending sequence starting at 1. Forward
// migrations apply in strictly ascending order; a failure rolls back
// that migration's transaction (leaving the schema untouched for that
// version) and halts the run. Migrations are never applied out of
// order and a failure never skips ahead.
//
// # Integrity
//
// The checksum of each script is recorded when it is applied. Verify()
// recomputes checksums from the sources and flags any drift - an
// applied script that was edited after deployment is a fatal integrity
// error requiring operator intervention, not something the engine
// papers over.
//
// # Concurrency
//
// Migration is a maintenance-phase activity. The engine does not guard
// against two processes migrating the same database concurrently; that
// must be enforced externally (for example with a deployment lock).
package migrate
