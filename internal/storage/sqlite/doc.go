// Package sqlite persists pending breakpoints in SQLite.
//
// A pending breakpoint is keyed by the URL of the source it was set in
// rather than by source id, so it survives the source being reloaded and
// can be restored in any later session that sees the same URL.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO.
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files; applied versions are recorded in schema_migrations.
package sqlite
