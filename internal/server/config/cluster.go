package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/peer/membership"
	"github.com/yndnr/zonemesh-go/internal/server/clusterserver"
	"github.com/yndnr/zonemesh-go/internal/telemetry/metric"
	"github.com/yndnr/zonemesh-go/pkg/crypto/adaptive"
)

// PeerName returns the configured peer name, generating one when empty.
// Generated names sort by start time, so the oldest unnamed peer leads.
func PeerName(cfg *ServerConfig) string {
	if cfg.Peer.Name != "" {
		return cfg.Peer.Name
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return "peer-" + id.String()
}

// ToNodeConfig converts ServerConfig to a clusterserver.Config. name is
// the resolved peer name (see PeerName); store is the peer registry
// selected by cluster.store.
func ToNodeConfig(cfg *ServerConfig, name string, store membership.PeerStore, logger *slog.Logger, metrics *metric.Registry) (clusterserver.Config, error) {
	if cfg == nil {
		return clusterserver.Config{}, errors.New("server config is nil")
	}
	if name == "" {
		return clusterserver.Config{}, domain.ErrPeerNameRequired
	}

	cipher, err := adaptive.ParseCipherType(cfg.Peer.Cipher)
	if err != nil {
		return clusterserver.Config{}, fmt.Errorf("peer.cipher: %w", err)
	}

	internal := cfg.Peer.InternalHost
	if internal == "" {
		internal, _, err = net.SplitHostPort(cfg.Cluster.ListenAddr)
		if err != nil {
			return clusterserver.Config{}, fmt.Errorf("cluster.listen_addr: %w", err)
		}
	}

	zones := make(map[domain.ZoneID]int32, len(cfg.Placement.Zones))
	for _, z := range cfg.Placement.Zones {
		zones[domain.ZoneID(z.ID)] = z.Capacity
	}

	return clusterserver.Config{
		Self: domain.PeerRecord{
			Name:         name,
			Region:       cfg.Peer.Region,
			InternalHost: internal,
			ExternalHost: cfg.Peer.ExternalHost,
			Port:         cfg.Peer.Port,
		},
		ListenAddr:         cfg.Cluster.ListenAddr,
		Secret:             cfg.Peer.SharedSecret,
		Cipher:             cipher,
		RefreshInterval:    cfg.Cluster.RefreshInterval,
		FirstRefreshDelay:  cfg.Cluster.FirstRefreshDelay,
		ReconnectBackoff:   cfg.Cluster.ReconnectBackoff,
		HandshakeTimeout:   cfg.Cluster.HandshakeTimeout,
		AcceptRate:         cfg.Cluster.AcceptRate,
		AcceptBurst:        cfg.Cluster.AcceptBurst,
		Zones:              zones,
		ReservationTimeout: cfg.Placement.ReservationTimeout,
		Store:              store,
		Logger:             logger,
		Metrics:            metrics,
	}, nil
}

// ToGossipConfig converts the gossip section to a clusterserver.GossipConfig.
func ToGossipConfig(cfg *ServerConfig, name string, onChange func(), logger *slog.Logger) clusterserver.GossipConfig {
	return clusterserver.GossipConfig{
		Name:     name,
		BindAddr: cfg.Cluster.Gossip.BindAddr,
		BindPort: cfg.Cluster.Gossip.BindPort,
		Seeds:    cfg.Cluster.Gossip.Seeds,
		OnChange: onChange,
		Logger:   logger,
	}
}
