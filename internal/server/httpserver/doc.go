// Package httpserver serves the admin HTTP API of a zonemesh peer:
//
//   - /health, /ready
//   - /metrics (Prometheus)
//   - /v1/peers, /v1/sessions, /v1/sessions/{name}, /v1/instances
//
// Every route passes through Recover, RequestID and AccessLog. The /v1
// routes are additionally limited per client by RateLimit and, when an
// allow list is configured, NetworkACL.
package httpserver
