package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/zonemesh-go/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyPeer(&cfg.Peer); err != nil {
		return err
	}
	if err := verifyCluster(&cfg.Cluster, &cfg.Peer); err != nil {
		return err
	}
	if err := verifyPlacement(&cfg.Placement); err != nil {
		return err
	}
	if err := verifyAdmin(&cfg.Admin); err != nil {
		return err
	}
	return verifyStorage(&cfg.Storage, cfg.Cluster.Store)
}

// maxSocketPath fits sun_path on both Linux and macOS.
const maxSocketPath = 103

func verifyAdmin(cfg *AdminSection) error {
	if cfg.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
			return fmt.Errorf("admin.addr: %w", err)
		}
	}
	for _, entry := range cfg.AllowList {
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("admin.allow_list: %q is neither an IP nor a CIDR block", entry)
		}
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("admin.tls_cert_file and admin.tls_key_file must be set together")
	}
	if len(cfg.Socket) > maxSocketPath {
		return fmt.Errorf("admin.socket: path longer than %d bytes", maxSocketPath)
	}
	return nil
}

func verifyPeer(cfg *PeerSection) error {
	if cfg.SharedSecret == "" {
		return errors.New("peer.shared_secret is required")
	}
	if strings.ContainsAny(cfg.Name, " \t\r\n") {
		return fmt.Errorf("peer.name %q contains whitespace", cfg.Name)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("peer.port %d out of range", cfg.Port)
	}
	if _, err := adaptive.ParseCipherType(cfg.Cipher); err != nil {
		return fmt.Errorf("peer.cipher: %w", err)
	}
	return nil
}

func verifyCluster(cfg *ClusterSection, peer *PeerSection) error {
	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("cluster.listen_addr: %w", err)
	}
	if peer.InternalHost == "" {
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			return fmt.Errorf("peer.internal_host is required when listening on %q", cfg.ListenAddr)
		}
	}
	if cfg.FirstRefreshDelay > cfg.RefreshInterval {
		return errors.New("cluster.first_refresh_delay must not exceed cluster.refresh_interval")
	}

	switch cfg.Store {
	case StoreMemory, StoreBadger:
	case StoreGossip:
		if cfg.Gossip.BindPort < 0 || cfg.Gossip.BindPort > 65535 {
			return fmt.Errorf("cluster.gossip.bind_port %d out of range", cfg.Gossip.BindPort)
		}
	default:
		return fmt.Errorf("cluster.store %q: want %s, %s or %s", cfg.Store, StoreMemory, StoreBadger, StoreGossip)
	}
	return nil
}

func verifyPlacement(cfg *PlacementSection) error {
	seen := make(map[uint32]bool, len(cfg.Zones))
	for _, z := range cfg.Zones {
		if seen[z.ID] {
			return fmt.Errorf("placement.zones: zone %d listed twice", z.ID)
		}
		seen[z.ID] = true
		if z.Capacity <= 0 {
			return fmt.Errorf("placement.zones: zone %d capacity must be positive", z.ID)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection, store string) error {
	if store == StoreMemory {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}
