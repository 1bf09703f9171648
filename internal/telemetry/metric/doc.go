// Package metric provides Prometheus metrics for ZoneMesh.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: private registry, event counters and HTTP handler
//   - collector.go: collector reading node state at scrape time
//
// Metrics include:
//
//   - Peer messages by kind and direction
//   - Pending request gauge
//   - Reservation outcomes
//   - Channel and handshake events
//   - Live peers, leader flag, directory sizes
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
