// Package app owns room lifecycle, usage accounting and quota enforcement.
// All room and usage mutations are serialized through one gate; broadcasts
// and store writes happen after it is released so a slow subscriber or an
// unreachable store never stalls unrelated room operations.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
)

// Broadcaster delivers an update to every subscriber of a room group.
// Delivery is best-effort: a failure never rolls back committed state.
type Broadcaster interface {
	Broadcast(id domain.RoomID, upd domain.TranslationUpdate) error
	SubscriberCount(id domain.RoomID) int
}

// UsageStore is the durable record of seconds used in a monthly period.
type UsageStore interface {
	GetUsed(ctx context.Context, periodCode string) (time.Duration, error)
	SaveUsed(ctx context.Context, periodCode string, used time.Duration) error
}

// SpeechConfig reports whether recognition credentials are configured;
// a session may not start without them.
type SpeechConfig interface {
	Configured() bool
}

type Config struct {
	FreeLimit     time.Duration // aggregate running time allowed per period
	RoomRetention time.Duration // stopped rooms are pruned after this
	UsageTick     time.Duration // monitor correctness tick
	PersistEvery  time.Duration // monitor persistence cadence
}

const (
	DefaultFreeLimit     = 300 * time.Minute
	DefaultRoomRetention = 6 * time.Hour
	DefaultUsageTick     = time.Second
	DefaultPersistEvery  = time.Minute
)

// Coordinator is the room registry and session coordinator. Constructed once
// at process start and handed to every adapter; there is no package-level
// mutable state.
type Coordinator struct {
	// mu serializes every mutation of rooms and usage state.
	mu sync.Mutex

	// rooms maps domain.RoomID -> *domain.Room. Reads that only touch
	// immutable fields (existence, PIN, AccessToken) may skip the gate;
	// everything else goes through mu.
	rooms sync.Map

	used       time.Duration
	periodCode string
	loaded     bool

	monitorCancel context.CancelFunc
	onForceStop   func(stopped int)

	runCtx context.Context
	bcast  Broadcaster
	store  UsageStore
	speech SpeechConfig
	cfg    Config
	now    func() time.Time
}

// NewCoordinator wires the coordinator with its collaborators. ctx bounds the
// lifetime of the background usage monitor.
func NewCoordinator(ctx context.Context, cfg Config, b Broadcaster, store UsageStore, speech SpeechConfig) *Coordinator {
	if cfg.FreeLimit <= 0 {
		cfg.FreeLimit = DefaultFreeLimit
	}
	if cfg.RoomRetention <= 0 {
		cfg.RoomRetention = DefaultRoomRetention
	}
	if cfg.UsageTick <= 0 {
		cfg.UsageTick = DefaultUsageTick
	}
	if cfg.PersistEvery <= 0 {
		cfg.PersistEvery = DefaultPersistEvery
	}
	return &Coordinator{
		runCtx: ctx,
		bcast:  b,
		store:  store,
		speech: speech,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetForceStopHook installs a callback invoked with the number of rooms the
// usage monitor force-stopped on quota exhaustion. Set once during wiring,
// before any session starts.
func (c *Coordinator) SetForceStopHook(fn func(stopped int)) {
	c.mu.Lock()
	c.onForceStop = fn
	c.mu.Unlock()
}

// RoomExists is a gate-free existence check for the display-page hot path.
func (c *Coordinator) RoomExists(rawID string) bool {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return false
	}
	_, ok := c.rooms.Load(id)
	return ok
}

// roomLocked looks a room up. The caller must hold mu before touching any
// mutable field of the result.
func (c *Coordinator) roomLocked(id domain.RoomID) (*domain.Room, bool) {
	v, ok := c.rooms.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*domain.Room), true
}

// notify fans updates out after the gate has been released. Failures are
// logged and swallowed; the state transition they announce already happened.
func (c *Coordinator) notify(id domain.RoomID, upds ...domain.TranslationUpdate) {
	for _, upd := range upds {
		if err := c.bcast.Broadcast(id, upd); err != nil {
			log.Warn().Err(err).Str("module", "app.coordinator").Str("room", string(id)).Msg("broadcast failed")
		}
	}
}

// persistUsage writes the committed usage counter. Read under the gate,
// written outside it. Store failures degrade to a logged no-op.
func (c *Coordinator) persistUsage(ctx context.Context) {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return
	}
	period, used := c.periodCode, c.used
	c.mu.Unlock()
	if err := c.store.SaveUsed(ctx, period, used); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("period", period).Msg("usage save failed")
	}
}

// UsageSnapshot reports running room count and live aggregate usage,
// for the metrics scrape callback.
func (c *Coordinator) UsageSnapshot() (running int, used time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.rolloverLocked(now)
	c.rooms.Range(func(_, v any) bool {
		if v.(*domain.Room).IsRunning {
			running++
		}
		return true
	})
	return running, c.liveUsageLocked(now)
}

// Shutdown force-stops every running room without per-room persistence and
// issues one consolidated usage write. Called once on process exit.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.monitorCancel != nil {
		c.monitorCancel()
		c.monitorCancel = nil
	}
	now := c.now()
	type note struct {
		id  domain.RoomID
		upd domain.TranslationUpdate
	}
	var notes []note
	c.rooms.Range(func(_, v any) bool {
		room := v.(*domain.Room)
		if room.IsRunning {
			notes = append(notes, note{room.ID, c.stopLocked(room, "server shutdown", now)})
		}
		return true
	})
	loaded := c.loaded
	c.mu.Unlock()

	for _, n := range notes {
		c.notify(n.id, n.upd)
	}
	if loaded {
		c.persistUsage(ctx)
	}
	log.Info().Str("module", "app.coordinator").Int("stopped", len(notes)).Msg("coordinator shut down")
}
