// Command zonemesh-server runs one peer of a zonemesh cluster.
//
// The peer publishes itself in the shared peer store, keeps an encrypted
// channel to every other live peer, replicates the session and instance
// directory and answers placement requests. An optional admin HTTP
// server exposes health, readiness, metrics and read-only snapshots, on
// TCP and optionally on a local Unix socket.
//
// Usage:
//
//	zonemesh-server serve --config /etc/zonemesh/server.yaml
//	zonemesh-server serve --name base --listen 10.0.0.1:5343
//	zonemesh-server peers --data-dir /var/lib/zonemesh-server/data
//	zonemesh-server secret
//	zonemesh-server version
//
// Every configuration key can also be set from the environment, e.g.
// ZONEMESH_PEER__SHARED_SECRET sets peer.shared_secret.
package main
