// Package kvstore provides the durable backends a session.Store can persist
// its record to.
//
//   - [Memory]: process-local map, the default.
//   - [Redis]: any go-redis UniversalClient, optional key prefix and TTL.
//   - [File]: one encrypted file (argon2id key derivation, XChaCha20-Poly1305).
//   - [SQL]: a single key/value table on sqlite3, mysql or postgres (pgx).
//
// Every backend reports a missing key as session.ErrNotFound.
package kvstore
