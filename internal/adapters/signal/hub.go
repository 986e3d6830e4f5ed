// Package signal is the realtime adapter: a websocket hub grouping display
// connections by room and the controller feeding presenter publishes into
// the coordinator.
package signal

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
	"github.com/MRCCollective/Babbler/internal/metrics"
)

var ErrBackpressure = errors.New("backpressure")

// subscriber is one websocket connection in a room group.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn: conn,
		send: make(chan []byte, 32),
	}
}

// TrySend never blocks: a subscriber that cannot keep up drops updates
// rather than stalling the fan-out.
func (s *subscriber) TrySend(data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("connection closed")
	}
	select {
	case s.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (s *subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	_ = s.conn.Close()
	s.mu.Unlock()
}

// Hub maps room ids to subscriber sets and implements the coordinator's
// Broadcaster. Group membership is guarded by its own lock, independent of
// the coordinator gate; per-room counts are atomic because they are purely
// advisory.
type Hub struct {
	mu     sync.RWMutex
	groups map[domain.RoomID]map[*subscriber]struct{}
	counts map[domain.RoomID]*atomic.Int64
	m      *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		groups: make(map[domain.RoomID]map[*subscriber]struct{}),
		counts: make(map[domain.RoomID]*atomic.Int64),
		m:      m,
	}
}

// Subscribe adds a connection to a room group and returns the subscriber
// plus a cleanup func for the disconnect path.
func (h *Hub) Subscribe(id domain.RoomID, conn *websocket.Conn) (*subscriber, func()) {
	sub := newSubscriber(conn)
	h.mu.Lock()
	if h.groups[id] == nil {
		h.groups[id] = make(map[*subscriber]struct{})
	}
	h.groups[id][sub] = struct{}{}
	cnt := h.counts[id]
	if cnt == nil {
		cnt = &atomic.Int64{}
		h.counts[id] = cnt
	}
	h.mu.Unlock()
	cnt.Add(1)

	log.Info().Str("module", "signal.hub").Str("room", string(id)).Msg("subscriber joined")
	return sub, func() { h.unsubscribe(id, sub) }
}

func (h *Hub) unsubscribe(id domain.RoomID, sub *subscriber) {
	h.mu.Lock()
	cnt := h.counts[id]
	if g, ok := h.groups[id]; ok {
		delete(g, sub)
		if len(g) == 0 {
			delete(h.groups, id)
			delete(h.counts, id)
		}
	}
	h.mu.Unlock()
	if cnt != nil {
		cnt.Add(-1)
	}
	sub.Close()
	log.Info().Str("module", "signal.hub").Str("room", string(id)).Msg("subscriber left")
}

// Broadcast emits a translationUpdate event to every subscriber of the room.
// The subscriber set is copied so no send happens under the hub lock.
func (h *Hub) Broadcast(id domain.RoomID, upd domain.TranslationUpdate) error {
	evt := struct {
		Type string `json:"type"`
		domain.TranslationUpdate
	}{Type: "translationUpdate", TranslationUpdate: upd}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.groups[id]))
	for s := range h.groups[id] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, s := range subs {
		if err := s.TrySend(data); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().Str("module", "signal.hub").Str("room", string(id)).Int("dropped", dropped).Msg("slow subscribers dropped update")
	}
	if h.m != nil {
		h.m.IncBroadcasts()
	}
	return nil
}

// SubscriberCount reads the advisory per-room counter without locking.
func (h *Hub) SubscriberCount(id domain.RoomID) int {
	h.mu.RLock()
	cnt := h.counts[id]
	h.mu.RUnlock()
	if cnt == nil {
		return 0
	}
	return int(cnt.Load())
}
