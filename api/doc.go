// Package api is the wire contract with the authentication backend:
// request and response shapes, user payload normalisation and the
// backend's error bodies.
//
// Login, registration and token refresh go over a plain *http.Client since
// they authenticate themselves. Profile calls go through a [Doer], normally
// the authenticated client, so they inherit bearer attachment and the
// refresh-and-replay behaviour.
package api
