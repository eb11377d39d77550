// Package session owns the signed-in user's identity and token pair.
//
// # Single writer
//
// Every mutation of the [Store] runs on one serialized path: swap the
// in-memory state, persist the record through a [KeyValueStore], then
// notify listeners synchronously in mutation order. Readers take snapshots
// and never observe a half-applied update.
//
// # Persistence
//
// The record is versioned JSON stored under a single key ("auth-storage"
// by default). Only identity, tokens and the authenticated flag are
// persisted. An unreadable record is discarded and treated as no session.
//
// # What this package must NOT do
//
//   - Perform network calls or token refreshes.
//   - Evaluate roles or permissions.
//   - Import goSession, refresh, client, or guard.
package session
