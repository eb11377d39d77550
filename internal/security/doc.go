// Package security derives the session security posture from
// configuration. The root package exposes it as SecurityReport and logs
// its warnings when a Manager is built.
package security
