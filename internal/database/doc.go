// Package database provides SQLite-based storage for excavate scans.
//
// The EventStore keeps one row per scan and one row per distinct event of a
// scan. It doubles as an event sink: ScanSink forwards every event emitted
// by the engine into the store, so a scan can be reported on or compared
// with an earlier scan after the process exits.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. WAL mode provides good concurrent read performance
//
// Events are keyed by type and payload within a scan. Emitting the same
// event twice updates the stored row instead of adding a second one.
package database
