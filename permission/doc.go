// Package permission holds the static role hierarchy and the permission
// matrix used by every authorization decision.
//
// # Roles
//
// Roles are ordinals: STUDENT < FACULTY < STAFF < ADMIN. A user whose role
// string is not recognised ranks below STUDENT; a requirement naming an
// unrecognised role can never be met.
//
// # Matrix
//
// The matrix maps permission names to bits through a frozen [Registry] and
// keeps one [Mask64] per role. It is immutable after construction.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Import goSession, session, or guard.
package permission
