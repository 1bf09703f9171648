// Package adaptive provides the authenticated encryption used on peer channels.
//
// Two AEAD algorithms are supported:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: portable default
//
// A channel runs an X25519 exchange (Ephemeral), feeds the shared secret
// and the handshake transcript through HKDF-SHA256 (DeriveSession) and gets
// one Cipher per direction. Nonces are derived from a per-direction base
// and the record sequence number, so a record replayed or reordered within
// a direction fails to open.
//
// Usage:
//
//	eph, _ := adaptive.GenerateEphemeral()
//	shared, _ := eph.Shared(remotePub)
//	send, recv, _ := adaptive.DeriveSession(shared, transcript, true, adaptive.CipherChaCha20)
//	sealed := send.Seal(seq, plaintext, aad)
package adaptive
