// Package devbackend is an in-process authentication backend speaking the
// same wire contract as the production one: login, registration, token
// refresh and the profile routes, plus two role-gated routes.
//
// Passwords are argon2id hashes, tokens are HS256 JWTs, and failed logins
// are throttled in Redis when a client is configured. Test controls
// (FailRefresh, SetRefreshDelay, RevokeAccessTokens, RefreshCalls) drive
// the client's recovery paths.
package devbackend
