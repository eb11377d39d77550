// Package rate provides the Redis fixed-window counters the development
// backend uses to throttle failed logins and refreshes.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit. Keys are <prefix>login:<email>,
// <prefix>login-ip:<ip> and <prefix>refresh:<subject>.
package rate
