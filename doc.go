// Package goSession is the client-side session and authorization core for
// an application talking to a JWT backend.
//
// A [Manager] owns exactly one session. It signs users in and out, keeps
// the access/refresh pair in a pluggable key-value store, renews the access
// token through a single-flight coordinator shared by every concurrent
// caller, replays a rejected request at most once, ends the session after
// a period without user activity, and answers role and permission
// questions through [guard.Spec] values.
//
// Managers are assembled with [New] and [Builder.Build]:
//
//	m, err := goSession.New().
//		WithConfig(cfg).
//		WithNavigator(nav).
//		Build(ctx)
//
// # Architecture boundaries
//
// The root package is the public surface. Building blocks are usable on
// their own: permission (roles and the permission matrix), session (the
// store), refresh (the coordinator), client (retry-once HTTP), idle (the
// inactivity monitor), guard (authorization decisions), middleware
// (net/http and echo adapters), api (the backend wire contract) and
// kvstore (storage backends). Audit delivery lives under internal/.
//
// # Concurrency contract
//
// Every Manager method is safe for concurrent use. Session listeners and
// the [Navigator] run synchronously on the goroutine that mutated the
// session and must not call back into mutating Manager methods.
package goSession
