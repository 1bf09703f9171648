// Package domain defines the core domain models for ZoneMesh.
package domain

import "strings"

// SessionID is the cluster-wide unique id of a user session.
type SessionID uint64

// SessionInfo is the directory entry for a live user session.
//
// It is mutated only by the Owner peer; every other peer holds a cached copy.
type SessionInfo struct {
	ID    SessionID `json:"id"`
	Name  string    `json:"name"`
	Owner string    `json:"owner"`
}

// NameKey returns the key of the name index.
func (s *SessionInfo) NameKey() string {
	return NameKey(s.Name)
}

// NameKey normalizes a display name for case-insensitive lookup.
func NameKey(name string) string {
	return strings.ToLower(name)
}
