package app

import (
	"crypto/subtle"
	"strings"

	"github.com/MRCCollective/Babbler/internal/domain"
)

// VerifyPin compares a user-supplied PIN (non-digits stripped) against the
// room's PIN and returns the access token to bind into a cookie on success.
// A wrong PIN is a false result, not an error; a missing room is an error.
func (c *Coordinator) VerifyPin(rawID, pin string) (accessToken string, ok bool, err error) {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return "", false, err
	}
	v, found := c.rooms.Load(id)
	if !found {
		return "", false, ErrRoomNotFound
	}
	room := v.(*domain.Room) // PIN/AccessToken are immutable, gate-free read
	if normalizePin(pin) != room.PIN {
		return "", false, nil
	}
	return room.AccessToken, true, nil
}

// HasDisplayAccess is a boolean gate, never a fallible operation: malformed
// or mismatched input is simply "no access". It runs gate-free so the static
// display page hot path never contends with the coordinator, and compares in
// constant time so the token cannot leak through timing.
func (c *Coordinator) HasDisplayAccess(rawID, presented string) bool {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return false
	}
	v, found := c.rooms.Load(id)
	if !found {
		return false
	}
	room := v.(*domain.Room)
	if presented == "" || len(presented) != len(room.AccessToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(room.AccessToken)) == 1
}

func normalizePin(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
