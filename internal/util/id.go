package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// MinID and MaxID bound the id space for keyset pagination windows.
// Every entity id sorts strictly between them.
const (
	MinID = "00000000-0000-0000-0000-000000000000"
	MaxID = "ffffffff-ffff-ffff-ffff-ffffffffffff"
)

// NewID returns a time-sortable UUIDv7. Entity creation time is derivable
// from the id, so rows carry no separate created_at column.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// v7 generation only fails if the entropy source does; fall back
		// to a random v4 rather than panicking in a request path.
		return uuid.NewString()
	}
	return id.String()
}

// ValidID reports whether value parses as a UUID.
func ValidID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

const inviteAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewInviteCode returns an opaque 16-character code. Codes sort as bytes,
// so invite listings page with the same window arithmetic as UUID ids.
func NewInviteCode() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(out)
}

// NewToken returns a 256-bit bearer secret in hex.
func NewToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
