// Package auth handles bearer token material. Tokens are opaque random
// secrets; only their SHA-256 hash is ever stored, so a leaked session
// table cannot be replayed.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"lamprey/api/internal/util"
)

var ErrInvalidToken = errors.New("invalid token")

// NewToken returns a fresh opaque bearer secret.
func NewToken() string {
	return util.NewToken()
}

// HashToken derives the storage key for a bearer secret.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
