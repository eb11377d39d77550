// Package otel publishes goSession metrics through OpenTelemetry.
//
// [NewExporter] registers an Int64ObservableCounter per session counter and
// an Int64ObservableGauge per refresh latency bucket. A single callback
// reads the snapshot on each collection cycle. Callers own the
// MeterProvider.
package otel
