package registry

import (
	"crypto/rand"
	"log"
	"math/big"
	"strings"
)

const (
	// roomIDAlphabet is the character set room identifiers are drawn from.
	// Submitted identifiers are canonicalized to this alphabet before lookup.
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// RoomIDLength is the exact length of a canonical room identifier.
	RoomIDLength = 6
)

// NormalizeRoomID canonicalizes a client-submitted room identifier: any
// character outside [A-Za-z0-9] is stripped and the rest is upper-cased.
// Returns ErrMalformedRoomID if the result is not exactly RoomIDLength
// characters; the stripped form is returned either way so callers can echo
// it back to the client.
func NormalizeRoomID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	id := b.String()
	if len(id) != RoomIDLength {
		return id, ErrMalformedRoomID
	}
	return id, nil
}

// newRoomID returns a random identifier of RoomIDLength characters from
// roomIDAlphabet. Uniqueness against live rooms is the caller's job.
func newRoomID() string {
	b := make([]byte, RoomIDLength)
	for i := range b {
		b[i] = roomIDAlphabet[randomIndex(len(roomIDAlphabet))]
	}
	return string(b)
}

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// defaultUsername generates a display name for clients that join without one.
func defaultUsername() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = usernameAlphabet[randomIndex(len(usernameAlphabet))]
	}
	return "User_" + string(b)
}

// randomIndex returns a cryptographically secure random index in [0, max).
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("failed to generate random index:", err)
	}
	return int(n.Int64())
}
