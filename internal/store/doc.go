// Package store holds computed TestResults for the HTTP API.
//
// Store is a thread-safe in-memory map keyed by result ID. Entries expire
// when they have not been updated within the TTL; a zero TTL keeps them
// until restart. Run evicts expired entries in the background.
//
// Update serializes edits: the callback sees the current result and returns
// its replacement while the store lock is held, so two concurrent edits to
// the same result never lose one another.
//
// A Persister (SQLite, see sqlite.go) may be attached to write every change
// through to disk; LoadAll restores the store on startup.
package store
