// Package otel publishes branchauth engine metrics through OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [branchauth.Engine.MetricsSnapshot] on each collection cycle. The caller owns the
// MeterProvider.
package otel
