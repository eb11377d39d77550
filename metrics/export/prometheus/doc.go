// Package prometheus renders goSession metrics in Prometheus text
// exposition format.
//
// Counters are named gosession_*_total. The refresh cycle histogram is
// gosession_refresh_latency_seconds, and gosession_session_active reports
// whether a user is signed in.
//
// The exporter never registers with a global registry; callers mount
// [Exporter.Handler].
package prometheus
