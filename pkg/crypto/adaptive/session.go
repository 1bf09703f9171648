package adaptive

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// PublicKeySize is the size of an X25519 public key.
const PublicKeySize = curve25519.PointSize

const (
	infoInitiator = "zonemesh/channel/v1 initiator"
	infoResponder = "zonemesh/channel/v1 responder"
	nonceBaseSize = 12
)

// Ephemeral is a one-shot X25519 key pair.
type Ephemeral struct {
	priv [curve25519.ScalarSize]byte
	pub  []byte
}

// GenerateEphemeral creates a fresh key pair.
func GenerateEphemeral() (*Ephemeral, error) {
	e := &Ephemeral{}
	if _, err := io.ReadFull(rand.Reader, e.priv[:]); err != nil {
		return nil, fmt.Errorf("adaptive: generate ephemeral: %w", err)
	}
	pub, err := curve25519.X25519(e.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("adaptive: derive public key: %w", err)
	}
	e.pub = pub
	return e, nil
}

// Public returns the public key to send to the remote side.
func (e *Ephemeral) Public() []byte {
	return append([]byte(nil), e.pub...)
}

// Shared computes the X25519 shared secret with the remote public key.
func (e *Ephemeral) Shared(remote []byte) ([]byte, error) {
	if len(remote) != PublicKeySize {
		return nil, errors.New("adaptive: bad remote public key size")
	}
	return curve25519.X25519(e.priv[:], remote)
}

// Destroy zeroes the private key.
func (e *Ephemeral) Destroy() {
	for i := range e.priv {
		e.priv[i] = 0
	}
}

// DeriveSession expands the shared secret into one cipher per direction.
// The initiator's send cipher is the responder's receive cipher.
func DeriveSession(shared, transcript []byte, initiator bool, cipherType CipherType) (send, recv Cipher, err error) {
	if len(shared) == 0 || len(transcript) == 0 {
		return nil, nil, errors.New("adaptive: empty key material")
	}

	ini, err := expand(shared, transcript, infoInitiator)
	if err != nil {
		return nil, nil, err
	}
	res, err := expand(shared, transcript, infoResponder)
	if err != nil {
		return nil, nil, err
	}

	iniCipher, err := New(cipherType, ini[:KeySize], ini[KeySize:])
	if err != nil {
		return nil, nil, err
	}
	resCipher, err := New(cipherType, res[:KeySize], res[KeySize:])
	if err != nil {
		return nil, nil, err
	}

	if initiator {
		return iniCipher, resCipher, nil
	}
	return resCipher, iniCipher, nil
}

func expand(shared, salt []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize+nonceBaseSize)
	r := hkdf.New(sha256.New, shared, salt, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("adaptive: derive keys: %w", err)
	}
	return out, nil
}
