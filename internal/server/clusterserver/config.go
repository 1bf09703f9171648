package clusterserver

import (
	"log/slog"
	"time"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/membership"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
	"github.com/yndnr/zonemesh-go/pkg/crypto/adaptive"
)

// Default admission limits of the peer listener.
const (
	DefaultAcceptRate  = 50
	DefaultAcceptBurst = 100
)

// Config configures a Node.
type Config struct {
	// Self is the local peer record. Port is filled in from the listener
	// when it is 0.
	Self domain.PeerRecord

	// ListenAddr is the peer listener address (host:port).
	ListenAddr string

	// Secret is the cluster shared secret.
	Secret string

	// Cipher selects the channel AEAD.
	Cipher adaptive.CipherType

	RefreshInterval   time.Duration
	FirstRefreshDelay time.Duration
	ReconnectBackoff  time.Duration
	HandshakeTimeout  time.Duration

	// AcceptRate and AcceptBurst bound inbound handshakes per second.
	AcceptRate  float64
	AcceptBurst int

	// Zones maps zone ids to their maximum population.
	Zones map[domain.ZoneID]int32

	ReservationTimeout time.Duration

	// Store is the shared peer registry.
	Store membership.PeerStore

	Logger  *slog.Logger
	Metrics *metric.Registry
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RefreshInterval <= 0 {
		out.RefreshInterval = membership.DefaultRefreshInterval
	}
	if out.AcceptRate <= 0 {
		out.AcceptRate = DefaultAcceptRate
	}
	if out.AcceptBurst <= 0 {
		out.AcceptBurst = DefaultAcceptBurst
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}
