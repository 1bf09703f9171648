package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// fingerprintBytes is the digest prefix shown by Fingerprint.
const fingerprintBytes = 8

// Fingerprint returns the first bytes of the SHA-256 of secret, hex
// encoded.
func Fingerprint(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:fingerprintBytes])
}

// Equal compares two secrets in constant time. Digests are compared so
// the timing does not depend on the secret lengths either.
func Equal(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
