// Package guard evaluates declarative access requirements against the
// signed-in identity.
//
// A Spec holds exactly one requirement (minimum role, exact role set,
// named permission, or plain authentication) and the policy applied when
// the requirement is not met. Evaluate is pure: it reads the identity it is
// given and never caches, so a role change is observed on the next call.
//
// Precedence when a Spec is built from loose Options is MinRole, then
// ExactRoles, then Permission. Only the first requirement present is
// evaluated.
package guard
