// Package channel implements the encrypted connection between two peers.
//
// A Channel moves through Connecting -> Handshaking -> Established ->
// Closed. Outbound channels (this peer dialed) retry from Connecting after a
// fixed backoff whenever the transport fails; inbound channels (accepted by
// the listener) never retry, their failure is final.
//
// Transport encryption is set up before any peer message is exchanged: the
// two sides swap X25519 public keys, derive one AEAD key per direction and
// from then on every frame travels as one sealed record:
//
//	length:u32 | AEAD(frame, aad = direction || sequence)
//
// The dialing side then sends the wire handshake. The accepting side
// answers with its own handshake only when the first one checks out, which
// lets the dialer confirm it reached the peer it meant to. A bad magic,
// version or shared secret, or any record that fails to open, is a
// protocol violation: the connection is closed immediately, without a
// response, and never retried.
package channel
