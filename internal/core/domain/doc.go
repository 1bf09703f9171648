// Package domain defines the core domain models for ZoneMesh.
//
// Domain models are plain value objects shared by the peer coordination
// layer. They carry no IO dependencies:
//
//   - PeerRecord: one server process as published in the peer store
//   - SessionInfo: directory entry for a live user session
//   - InstanceID / InstanceInfo: directory entry for a running zone instance
//   - Errors: coded domain errors
package domain
