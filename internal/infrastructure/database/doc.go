// Package database provides the SQLite connection used by the known-device
// store. It handles connection setup (WAL mode, busy timeout, foreign
// keys), pool configuration for SQLite's single-writer model, health
// checks, and graceful shutdown.
package database
