// Package idle terminates sessions after a period without user activity.
//
// A Monitor arms a countdown when started and re-arms it on every activity
// signal delivered by its ActivitySource. When the countdown elapses the
// monitor stops listening and invokes the logout callback once. The
// deadline is wall-clock based, so time spent with the host suspended or
// backgrounded still counts toward the timeout.
package idle
