package checkpoint

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// TokenLength is the exact length of an approval token.
const TokenLength = 32

// NewToken generates a single-use approval token: 32 lowercase hex characters
// from a cryptographically secure source.
func NewToken() (string, error) {
	buf := make([]byte, TokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidToken reports whether s has the exact token format. Tokens arrive from
// untrusted approval links, so anything off-format is treated as unknown
// rather than an error.
func ValidToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NewRunID generates a version-4 UUID run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// ValidRunID reports whether s is a canonical version-4 UUID. Run IDs double
// as storage key components, so stores reject anything else before touching
// the filesystem or database.
func ValidRunID(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}
