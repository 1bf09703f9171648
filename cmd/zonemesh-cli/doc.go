// Command zonemesh-cli inspects a running zonemesh peer cluster through
// the admin API of one of its peers.
//
// Usage:
//
//	zonemesh-cli [--admin host:port] [--ca-file ca.pem] [-o table|json|yaml] [-w] <command>
//
// Commands:
//
//	cluster peers            live peers, leader and channel state
//	session list [--owner]   the session directory
//	session get <name>       resolve a session by display name
//	instance list [--zone]   known instances and their open places
//	system health|ready      process and membership status
//
// On the peer's host the admin socket needs no allow list entry:
//
//	zonemesh-cli --admin unix:///run/zonemesh/admin.sock cluster peers
package main
