// Package secrets generates, hashes and masks tenant API keys.
//
// Keys are stored only as a SHA-256 hex digest so they can be looked up by hash;
// the plaintext is shown to the operator once at creation time.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	dErrors "loyalgate/pkg/domain-errors"
)

// KeyPrefix marks loyalgate API keys so they are recognizable in logs and secret scanners.
const KeyPrefix = "lk_"

// Key length bounds accepted on the wire. Generated keys are 46 characters.
const (
	MinKeyLength = 20
	MaxKeyLength = 128
)

// Generate creates a new random API key: KeyPrefix followed by 32 random bytes, base64url.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate api key: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the lowercase hex SHA-256 digest used as the lookup key for raw.
func Hash(raw string) (string, error) {
	if raw == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "api key cannot be empty")
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// WellFormed reports whether raw has an acceptable length and only [A-Za-z0-9_-] characters.
func WellFormed(raw string) bool {
	if len(raw) < MinKeyLength || len(raw) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// Mask renders a key as "****" plus its last four characters.
func Mask(raw string) string {
	if len(raw) <= 4 {
		return "****"
	}
	return "****" + raw[len(raw)-4:]
}
