// Package crypto derives stable digests for sensitive identifiers.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// tokenDomain separates purchase token digests from other blake2b uses.
var tokenDomain = []byte("carenote/purchase-token/v1")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// TokenDigest returns the keyed BLAKE2b-256 digest of a purchase token.
// Ledgers and logs keep only the digest, never the token.
func TokenDigest(token string) []byte {
	h, err := blake2b.New256(tokenDomain)
	if err != nil {
		// key length is constant and below the 64-byte limit
		panic(err)
	}
	h.Write([]byte(token))
	return h.Sum(nil)
}

// DigestEqual compares two digests in constant time.
func DigestEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// NewDeviceID returns a random device identifier.
func NewDeviceID() (string, error) {
	b, err := RandBytes(8)
	if err != nil {
		return "", err
	}
	return "dev-" + hex.EncodeToString(b), nil
}
