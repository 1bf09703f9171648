// Package handler implements the admin HTTP endpoints: health, readiness
// and read-only views of the peer's cluster state.
package handler
