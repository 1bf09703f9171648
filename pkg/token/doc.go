// Package token generates and compares cluster shared secrets.
//
// Secret format:
//
//   - Prefix: zmk_ (4 characters)
//   - Body: 43 characters of Base64 RawURL encoded random bytes
//   - Total: 47 characters
//
// The zmk_ prefix lets the logger recognise and mask secrets wherever
// they appear. Fingerprint gives a short, non-reversible label that is
// safe to log, so operators can check that two peers share a secret.
package token
