// Package storage provides durable storage for ZoneMesh.
//
// The only durable state of a peer is its view of the cluster membership:
//
//   - BadgerEngine: embedded key-value engine (Badger v3)
//   - PeerStore: PeerRecords kept in a KVEngine under the "peer/" prefix
//   - CachedPeerStore: write-through cache in front of a shared peer
//     store, used to fall back on the last known records while the shared
//     store is unreachable and to seed cluster joins after a restart
//
// Directory state is never persisted: it is rebuilt from broadcasts.
package storage
