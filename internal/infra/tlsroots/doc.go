// Package tlsroots provides the TLS material of the admin API: a
// certificate reloader for the server side and a trust pool for clients.
//
// CertReloader watches the certificate and key files with fsnotify and
// swaps the served certificate when either changes, so certificates can
// be rotated without restarting the peer.
package tlsroots
