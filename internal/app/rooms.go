package app

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
)

// Room ids draw from an alphabet without 0/1/i/l/o so codes survive being
// read aloud or typed from a projector.
const (
	roomIDAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	roomIDLength   = 6
	maxIDAttempts  = 64

	minRoomIDLen = 4
	maxRoomIDLen = 16
)

// NormalizeRoomID lowercases and validates a client-supplied room id.
func NormalizeRoomID(raw string) (domain.RoomID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) < minRoomIDLen || len(s) > maxRoomIDLen {
		return "", ErrInvalidRoomID
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", ErrInvalidRoomID
		}
	}
	return domain.RoomID(s), nil
}

// RoomCredentials is what the operator needs to hand to a presenter.
type RoomCredentials struct {
	RoomID string `json:"roomId"`
	PIN    string `json:"pin"`
}

// RoomSummary is the operator/diagnostic listing view of a room.
type RoomSummary struct {
	RoomID             string    `json:"roomId"`
	IsRunning          bool      `json:"isRunning"`
	SourceLanguage     string    `json:"sourceLanguage,omitempty"`
	TargetLanguage     string    `json:"targetLanguage"`
	LastStateChangedAt time.Time `json:"lastStateChangedAt"`
	LastStopReason     string    `json:"lastStopReason,omitempty"`
	Subscribers        int       `json:"subscribers"`
}

// CreateRoom allocates a fresh room with a unique id, a 6-digit PIN and an
// access token. Expired stopped rooms are pruned first to reclaim slots.
func (c *Coordinator) CreateRoom() (RoomCredentials, error) {
	c.mu.Lock()
	now := c.now()
	c.pruneLocked(now)

	var id domain.RoomID
	found := false
	for i := 0; i < maxIDAttempts; i++ {
		cand := domain.RoomID(randomCode(roomIDLength))
		if _, exists := c.rooms.Load(cand); !exists {
			id = cand
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		log.Error().Str("module", "app.rooms").Int("attempts", maxIDAttempts).Msg("room id generation exhausted")
		return RoomCredentials{}, ErrRoomIDSpaceExhausted
	}

	room := &domain.Room{
		ID:                 id,
		PIN:                randomPIN(),
		AccessToken:        uuid.NewString(),
		TargetLanguage:     "sv",
		LastStateChangedAt: now,
	}
	c.rooms.Store(id, room)
	c.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return RoomCredentials{RoomID: string(id), PIN: room.PIN}, nil
}

// GetRoomAccessInfo returns the id and PIN for an existing room.
func (c *Coordinator) GetRoomAccessInfo(rawID string) (RoomCredentials, error) {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return RoomCredentials{}, err
	}
	v, ok := c.rooms.Load(id)
	if !ok {
		return RoomCredentials{}, ErrRoomNotFound
	}
	room := v.(*domain.Room) // PIN is immutable, gate-free read is fine
	return RoomCredentials{RoomID: string(id), PIN: room.PIN}, nil
}

// ListRooms returns all live rooms, running first, then most recently changed.
func (c *Coordinator) ListRooms() []RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RoomSummary, 0, 8)
	c.rooms.Range(func(_, v any) bool {
		room := v.(*domain.Room)
		out = append(out, RoomSummary{
			RoomID:             string(room.ID),
			IsRunning:          room.IsRunning,
			SourceLanguage:     room.SourceLanguage,
			TargetLanguage:     string(room.TargetLanguage),
			LastStateChangedAt: room.LastStateChangedAt,
			LastStopReason:     room.LastStopReason,
			Subscribers:        c.bcast.SubscriberCount(room.ID),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsRunning != out[j].IsRunning {
			return out[i].IsRunning
		}
		return out[i].LastStateChangedAt.After(out[j].LastStateChangedAt)
	})
	return out
}

// pruneLocked removes rooms that have been stopped longer than the retention
// window. A running room is never pruned.
func (c *Coordinator) pruneLocked(now time.Time) {
	var expired []domain.RoomID
	c.rooms.Range(func(_, v any) bool {
		room := v.(*domain.Room)
		if !room.IsRunning && now.Sub(room.LastStateChangedAt) > c.cfg.RoomRetention {
			expired = append(expired, room.ID)
		}
		return true
	})
	for _, id := range expired {
		c.rooms.Delete(id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room pruned")
	}
}

func randomCode(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	b := make([]byte, n)
	for i, v := range buf {
		b[i] = roomIDAlphabet[int(v)%len(roomIDAlphabet)]
	}
	return string(b)
}

func randomPIN() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return fmt.Sprintf("%06d", binary.BigEndian.Uint32(buf[:])%1000000)
}
