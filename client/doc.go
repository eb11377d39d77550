// Package client is the authenticated HTTP client used for every business
// call.
//
// Each request carries the session's current access token. A 401 answer
// triggers exactly one recovery per logical request: if another caller
// already refreshed the token the request is replayed with the current
// token, otherwise the client joins (or starts) the single in-flight
// refresh and replays with its result. A 401 on the replay is returned as
// *UnauthorizedError; refresh failures are returned unchanged.
package client
