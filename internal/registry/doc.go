// Package registry persists pipeline documents in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stale-run recovery, and the conditional status
// transitions the workflow manager relies on for claiming work. Document rows
// capture classification, extraction, archive locations, and idempotency
// state so stages can resume safely after a crash.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when you add new statuses or fields, update schema.sql and bump
// schemaVersion.
package registry
