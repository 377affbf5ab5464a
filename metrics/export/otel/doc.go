// Package otel publishes goCreds engine metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter and each histogram bucket an
// Int64ObservableGauge. A single callback reads Engine.MetricsSnapshot per
// collection. The caller owns the MeterProvider.
package otel
