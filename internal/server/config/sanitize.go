package config

import (
	"strings"

	"github.com/yndnr/zonemesh-go/internal/telemetry/logger"
)

// Sanitize returns a copy of the config with the shared secret masked,
// for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	if sanitized.Peer.SharedSecret != "" {
		sanitized.Peer.SharedSecret = maskSecret(sanitized.Peer.SharedSecret)
	}
	sanitized.Cluster.Gossip.Seeds = append([]string(nil), cfg.Cluster.Gossip.Seeds...)
	sanitized.Placement.Zones = append([]ZoneConfig(nil), cfg.Placement.Zones...)
	return &sanitized
}

// maskSecret masks a secret value for safe logging. zmk_ secrets get the
// same mask as in log output.
func maskSecret(s string) string {
	if logger.IsSensitiveValue(s) {
		return logger.RedactString(s)
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
