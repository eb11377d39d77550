// Package middleware gates HTTP routes with guard specs.
//
// # Adapters
//
//   - [Guard] wraps a net/http handler.
//   - [EchoGuard] is the same gate as an echo middleware.
//   - [RequireAuthenticated], [RequireMinRole] and [RequirePermission] are
//     shortcuts over [Guard].
//
// Each adapter resolves the current identity, calls guard.Evaluate and maps
// the decision to HTTP: allow runs the next handler with the identity in
// the request context, login and policy redirects answer 302, and denials
// answer 403 (a JSON body when the message is shown, an empty body when it
// is hidden, or the configured fallback handler).
//
// This package does not make authorization decisions itself; it only
// translates guard decisions.
package middleware
