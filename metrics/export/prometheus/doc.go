// Package prometheus exposes leaseAuth engine metrics as a
// prometheus.Collector.
//
// Register the collector on any registry; the service mounts it behind
// promhttp. Counters are named leaseauth_*_total and the gate latency
// histogram is leaseauth_gate_latency_seconds. The engine does not track a
// latency sum, so _sum is always 0.
package prometheus
