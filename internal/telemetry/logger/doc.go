// Package logger provides structured logging for ZoneMesh.
//
// It wraps log/slog:
//
//   - logger.go: Logger construction, JSON and text output, runtime level
//   - redact.go: masking of the cluster secret and other sensitive values
//   - context.go: request id propagation for the admin HTTP surface
//   - hclog.go: bridge for libraries that log through hashicorp/go-hclog
//     or a standard *log.Logger (memberlist)
//
// Components take a *slog.Logger obtained from Logger.Slog.
package logger
