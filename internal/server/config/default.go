package config

import (
	"github.com/yndnr/zonemesh-go/internal/peer/channel"
	"github.com/yndnr/zonemesh-go/internal/peer/membership"
	"github.com/yndnr/zonemesh-go/internal/peer/placement"
)

// Store kinds accepted in cluster.store.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreGossip = "gossip"
)

// Default configuration values.
const (
	DefaultListenAddr  = "127.0.0.1:5343"
	DefaultGossipAddr  = "127.0.0.1"
	DefaultGossipPort  = 5344
	DefaultAdminAddr   = "127.0.0.1:5080"
	DefaultDataDir     = "/var/lib/zonemesh-server/data"
	DefaultCipher      = "chacha20-poly1305"
	DefaultStore       = StoreBadger
	DefaultAcceptRate  = 50
	DefaultAcceptBurst = 100
	DefaultAdminRate   = 20

	DefaultRefreshInterval    = membership.DefaultRefreshInterval
	DefaultFirstRefreshDelay  = membership.DefaultFirstRefreshDelay
	DefaultReconnectBackoff   = channel.DefaultBackoff
	DefaultHandshakeTimeout   = channel.DefaultHandshakeTimeout
	DefaultReservationTimeout = placement.DefaultReservationTimeout

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Peer: PeerSection{
			Cipher: DefaultCipher,
		},
		Cluster: ClusterSection{
			ListenAddr:        DefaultListenAddr,
			RefreshInterval:   DefaultRefreshInterval,
			FirstRefreshDelay: DefaultFirstRefreshDelay,
			ReconnectBackoff:  DefaultReconnectBackoff,
			HandshakeTimeout:  DefaultHandshakeTimeout,
			AcceptRate:        DefaultAcceptRate,
			AcceptBurst:       DefaultAcceptBurst,
			Store:             DefaultStore,
			Gossip: GossipSection{
				BindAddr: DefaultGossipAddr,
				BindPort: DefaultGossipPort,
			},
		},
		Placement: PlacementSection{
			ReservationTimeout: DefaultReservationTimeout,
		},
		Storage: StorageSection{
			DataDir: DefaultDataDir,
		},
		Admin: AdminSection{
			Addr:      DefaultAdminAddr,
			RateLimit: DefaultAdminRate,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
