// Package otel publishes Engine metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection cycle.
//
// The caller owns the MeterProvider and supplies the Meter.
package otel
