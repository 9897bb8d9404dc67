// Package database stores finished session reports in SQLite
// (modernc.org/sqlite, no cgo).
//
// Only outcomes are persisted: one row per session with its terminal
// state, counters, a SHA3 digest of the visited trail and the full report
// as JSON. Traversal state never reaches the database.
package database
