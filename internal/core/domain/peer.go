// Package domain defines the core domain models for ZoneMesh.
package domain

import (
	"net"
	"strconv"
	"time"
)

// LivenessFactor is how many refresh intervals a peer record stays live
// without being refreshed.
const LivenessFactor = 5

// PeerRecord is one server process as published in the shared peer store.
//
// Each peer writes only its own record; every peer reads all of them.
type PeerRecord struct {
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	InternalHost string    `json:"internal_host"`
	ExternalHost string    `json:"external_host"`
	Port         int       `json:"port"`
	Active       bool      `json:"active"`
	Updated      time.Time `json:"updated"`
}

// Validate checks the record can be stored.
func (p *PeerRecord) Validate() error {
	if p.Name == "" {
		return ErrPeerNameRequired
	}
	if p.Port < 0 || p.Port > 65535 {
		return ErrPeerInvalid.WithDetails("port out of range: " + strconv.Itoa(p.Port))
	}
	return nil
}

// IsLive reports whether the peer is active and was refreshed within
// LivenessFactor refresh intervals of now.
func (p *PeerRecord) IsLive(now time.Time, refresh time.Duration) bool {
	if !p.Active {
		return false
	}
	return now.Sub(p.Updated) < LivenessFactor*refresh
}

// InternalAddr returns the host:port other peers dial.
func (p *PeerRecord) InternalAddr() string {
	return net.JoinHostPort(p.InternalHost, strconv.Itoa(p.Port))
}

// SameTarget reports whether two records resolve to the same dial target.
func (p *PeerRecord) SameTarget(other *PeerRecord) bool {
	return p.InternalHost == other.InternalHost && p.Port == other.Port
}
