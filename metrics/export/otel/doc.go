// Package otel exports leaseAuth engine metrics through an OpenTelemetry
// Meter.
//
// Each counter becomes an Int64ObservableCounter and each latency bucket an
// Int64ObservableGauge; a single callback reads the engine snapshot per
// collection. The caller owns the MeterProvider.
package otel
