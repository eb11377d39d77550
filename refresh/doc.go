// Package refresh coordinates access token renewal so that at most one
// refresh call is in flight at a time.
//
// # Single flight
//
// The first caller of [Coordinator.EnsureValidToken] while idle starts the
// refresh; every caller arriving before it settles is parked in a FIFO
// queue. On success the new tokens are handed to the [TokenProvider] and
// every waiter receives the new access token in arrival order. On failure
// the provider is told to invalidate the session exactly once and every
// waiter receives the same *Error.
//
// A cycle is bound to the refresh token it started with. If the session is
// replaced while the call is in flight, the outcome is not applied to the
// new session and the waiters receive an *Error instead.
//
// # Cancellation
//
// The refresh call itself is detached from the caller contexts and bounded
// by Options.Timeout. A caller whose context ends stops waiting; the
// shared refresh carries on for everyone else.
//
// # What this package must NOT do
//
//   - Decide whether a request needs a refresh (that is the client's job).
//   - Mutate session state other than through TokenProvider.
package refresh
