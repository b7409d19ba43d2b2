// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Calendar refresh outcomes, durations and degraded ranges
//   - Snapshot cache reads by state
//   - Live feed connection state, reconnects and tick rate
//   - HTTP request counts and latencies
package metrics
