package token

import (
	"crypto/rand"
	"encoding/base64"
)

// SecretPrefix marks cluster shared secrets.
const SecretPrefix = "zmk_"

// DefaultLength is the number of random bytes in a generated secret.
const DefaultLength = 32

// GenerateSecret returns a new zmk_ secret with DefaultLength random bytes.
func GenerateSecret() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns a zmk_ secret with length random bytes.
func GenerateWithLength(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
