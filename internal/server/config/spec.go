package config

import "time"

// ServerConfig is the root configuration of zonemesh-server.
type ServerConfig struct {
	Peer      PeerSection      `koanf:"peer"`
	Cluster   ClusterSection   `koanf:"cluster"`
	Placement PlacementSection `koanf:"placement"`
	Storage   StorageSection   `koanf:"storage"`
	Admin     AdminSection     `koanf:"admin"`
	Log       LogSection       `koanf:"log"`
}

// PeerSection describes the local peer as it is published to the others.
type PeerSection struct {
	// Name is the unique peer name. A peer-<ULID> name is generated when
	// empty.
	Name   string `koanf:"name"`
	Region string `koanf:"region"`

	// InternalHost is the address other peers dial. Defaults to the host
	// of cluster.listen_addr.
	InternalHost string `koanf:"internal_host"`
	ExternalHost string `koanf:"external_host"`

	// Port overrides the published port when the listener sits behind a
	// port mapping.
	Port int `koanf:"port"`

	SharedSecret string `koanf:"shared_secret"`

	// Cipher is "chacha20-poly1305", "aes-gcm" or "auto". Every peer must
	// resolve to the same cipher, so "auto" only suits uniform hosts.
	Cipher string `koanf:"cipher"`
}

// ClusterSection configures the peer listener and membership.
type ClusterSection struct {
	ListenAddr        string        `koanf:"listen_addr"`
	RefreshInterval   time.Duration `koanf:"refresh_interval"`
	FirstRefreshDelay time.Duration `koanf:"first_refresh_delay"`
	ReconnectBackoff  time.Duration `koanf:"reconnect_backoff"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`
	AcceptRate        float64       `koanf:"accept_rate"`
	AcceptBurst       int           `koanf:"accept_burst"`

	// Store selects the shared peer registry: memory, badger or gossip.
	Store  string        `koanf:"store"`
	Gossip GossipSection `koanf:"gossip"`
}

// GossipSection configures the memberlist peer store.
type GossipSection struct {
	BindAddr string   `koanf:"bind_addr"`
	BindPort int      `koanf:"bind_port"`
	Seeds    []string `koanf:"seeds"`
}

// PlacementSection configures instance placement.
type PlacementSection struct {
	ReservationTimeout time.Duration `koanf:"reservation_timeout"`
	Zones              []ZoneConfig  `koanf:"zones"`
}

// ZoneConfig is one zone and the population limit of its instances.
type ZoneConfig struct {
	ID       uint32 `koanf:"id"`
	Capacity int32  `koanf:"capacity"`
}

// StorageSection configures local persistence.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`
}

// AdminSection configures the admin HTTP server.
type AdminSection struct {
	// Addr is the listen address; empty disables the server.
	Addr string `koanf:"addr"`

	// AllowList restricts the /v1 endpoints to these IPs or CIDR blocks.
	AllowList []string `koanf:"allow_list"`

	// RateLimit is the per-client request rate of the /v1 endpoints.
	RateLimit float64 `koanf:"rate_limit"`

	// TLSCertFile and TLSKeyFile enable HTTPS. Both files are watched and
	// reloaded on change.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// Socket is a Unix socket path serving the same API without the allow
	// list. Empty disables it.
	Socket string `koanf:"socket"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
