package ids

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// inviteAlphabet avoids characters that are easy to confuse when read aloud.
const inviteAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// InviteCodeLength is the length of generated invite codes.
const InviteCodeLength = 8

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewID returns a new UUIDv7 as a string, used for rooms, users and agents.
func NewID() string {
	return NewUUIDv7().String()
}

// NewConnID returns a sortable identifier for a transport connection.
func NewConnID() string {
	return ulid.Make().String()
}

// NewInviteCode returns a short random human-shareable code.
func NewInviteCode() (string, error) {
	max := big.NewInt(int64(len(inviteAlphabet)))
	code := make([]byte, InviteCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = inviteAlphabet[n.Int64()]
	}
	return string(code), nil
}
