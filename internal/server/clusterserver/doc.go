// Package clusterserver runs one ZoneMesh peer.
//
// A Node owns the peer listener, the control loop and the components
// confined to it:
//
//   - membership: live peers, leader, one channel per peer
//   - rpc: shared object registry and request collation
//   - directory: replicated sessions and zone instances
//   - placement: instance place reservations
//
// GossipStore is a memberlist-backed peer registry for clusters without
// a shared database.
package clusterserver
