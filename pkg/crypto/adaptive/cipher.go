package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length for both algorithms.
const KeySize = 32

var (
	ErrKeySize   = errors.New("adaptive: key must be 32 bytes")
	ErrNonceBase = errors.New("adaptive: nonce base must match cipher nonce size")
	ErrOpen      = errors.New("adaptive: message authentication failed")
)

// Cipher seals records of one direction of a channel.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Seal encrypts plaintext as record number seq.
	Seal(seq uint64, plaintext, additionalData []byte) []byte

	// Open decrypts record number seq.
	Open(seq uint64, ciphertext, additionalData []byte) ([]byte, error)

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// ParseCipherType accepts the config spelling of a cipher. "auto" picks
// the preferred algorithm for this machine.
func ParseCipherType(s string) (CipherType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(CipherChaCha20), "chacha20":
		return CipherChaCha20, nil
	case string(CipherAESGCM), "aes":
		return CipherAESGCM, nil
	case "auto":
		return Preferred(), nil
	default:
		return "", fmt.Errorf("unknown cipher type: %s", s)
	}
}

// Preferred returns AES-GCM on architectures where Go uses hardware AES,
// ChaCha20-Poly1305 otherwise. Every peer of a cluster must agree on the
// cipher, so "auto" is only safe on homogeneous fleets.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

// New creates a cipher of the given type from key and nonce base.
func New(cipherType CipherType, key, nonceBase []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch cipherType {
	case CipherAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, errors.New("unknown cipher type: " + string(cipherType))
	}
	if err != nil {
		return nil, err
	}

	if len(nonceBase) != aead.NonceSize() {
		return nil, ErrNonceBase
	}
	return &sequenced{
		kind: cipherType,
		aead: aead,
		base: append([]byte(nil), nonceBase...),
	}, nil
}

// sequenced derives each nonce by xoring the record sequence number into
// the tail of the nonce base.
type sequenced struct {
	kind CipherType
	aead cipher.AEAD
	base []byte
}

func (c *sequenced) Type() CipherType { return c.kind }

func (c *sequenced) Overhead() int { return c.aead.Overhead() }

func (c *sequenced) nonce(seq uint64) []byte {
	nonce := append([]byte(nil), c.base...)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], seq)
	off := len(nonce) - 8
	for i := 0; i < 8; i++ {
		nonce[off+i] ^= tmp[i]
	}
	return nonce
}

func (c *sequenced) Seal(seq uint64, plaintext, additionalData []byte) []byte {
	return c.aead.Seal(nil, c.nonce(seq), plaintext, additionalData)
}

func (c *sequenced) Open(seq uint64, ciphertext, additionalData []byte) ([]byte, error) {
	out, err := c.aead.Open(nil, c.nonce(seq), ciphertext, additionalData)
	if err != nil {
		return nil, ErrOpen
	}
	return out, nil
}
