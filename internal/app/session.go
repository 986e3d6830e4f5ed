package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
)

// Status is the session view exposed on the control surface.
type Status struct {
	RoomID           string  `json:"roomId"`
	IsRunning        bool    `json:"isRunning"`
	SourceLanguage   string  `json:"sourceLanguage,omitempty"`
	TargetLanguage   string  `json:"targetLanguage"`
	UsedMinutes      float64 `json:"usedMinutes"`
	LimitMinutes     float64 `json:"limitMinutes"`
	RemainingMinutes float64 `json:"remainingMinutes"`
	LimitReached     bool    `json:"limitReached"`
	Subscribers      int     `json:"subscribers"`
}

// StartSession transitions a room to running. A room that is already running
// is stopped first (reason "restart") so the new session atomically replaces
// the old one. The start is refused while the aggregate free time is spent.
func (c *Coordinator) StartSession(ctx context.Context, rawID, sourceLang, targetLang string) (Status, error) {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return Status{}, err
	}
	if !c.speech.Configured() {
		return Status{}, ErrSpeechNotConfigured
	}
	var target domain.Language
	if targetLang != "" {
		var ok bool
		if target, ok = domain.NormalizeTarget(targetLang); !ok {
			return Status{}, ErrUnsupportedLanguage
		}
	}

	c.mu.Lock()
	room, ok := c.roomLocked(id)
	if !ok {
		c.mu.Unlock()
		return Status{}, ErrRoomNotFound
	}
	c.ensureUsageLoadedLocked(ctx)
	now := c.now()
	c.rolloverLocked(now)

	var notices []domain.TranslationUpdate
	persist := false
	if room.IsRunning {
		notices = append(notices, c.stopLocked(room, "restart", now))
		persist = true
	}

	remaining := c.cfg.FreeLimit - c.liveUsageLocked(now)
	if remaining <= 0 {
		c.mu.Unlock()
		// The implicit restart-stop, if any, stands: notify and persist it.
		c.notify(id, notices...)
		if persist {
			c.persistUsage(ctx)
		}
		return Status{}, ErrQuotaExhausted
	}

	if sourceLang != "" {
		room.SourceLanguage = strings.TrimSpace(sourceLang)
	}
	if targetLang != "" {
		room.TargetLanguage = target
	}
	room.IsRunning = true
	room.SessionStartedAt = now
	room.LastStateChangedAt = now
	room.LastStoppedAt = time.Time{}
	room.LastStopReason = ""
	c.ensureMonitorLocked()

	notices = append(notices, systemNotice(now, fmt.Sprintf(
		"Session started (%s). %.0f free minutes remaining.",
		domain.DisplayName(room.TargetLanguage), remaining.Minutes())))
	st := c.statusLocked(room, now)
	c.mu.Unlock()

	log.Info().Str("module", "app.session").Str("room", string(id)).
		Str("target", st.TargetLanguage).Float64("remaining_min", st.RemainingMinutes).Msg("session started")
	c.notify(id, notices...)
	if persist {
		c.persistUsage(ctx)
	}
	return st, nil
}

// StopSession stops a running room and persists the updated usage total.
// Stopping a room that is not running is a no-op.
func (c *Coordinator) StopSession(ctx context.Context, rawID, reason string) error {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	room, ok := c.roomLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrRoomNotFound
	}
	if !room.IsRunning {
		c.mu.Unlock()
		return nil
	}
	notice := c.stopLocked(room, reason, c.now())
	stopReason := room.LastStopReason
	c.mu.Unlock()

	log.Info().Str("module", "app.session").Str("room", string(id)).Str("reason", stopReason).Msg("session stopped")
	c.notify(id, notice)
	c.persistUsage(ctx)
	return nil
}

// SetTargetLanguage switches the room's target. On a running room an actual
// change is announced to subscribers; a stopped room is mutated silently and
// the new target takes effect on the next start.
func (c *Coordinator) SetTargetLanguage(rawID, targetLang string) error {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return err
	}
	target, ok := domain.NormalizeTarget(targetLang)
	if !ok {
		return ErrUnsupportedLanguage
	}

	c.mu.Lock()
	room, found := c.roomLocked(id)
	if !found {
		c.mu.Unlock()
		return ErrRoomNotFound
	}
	if room.TargetLanguage == target {
		c.mu.Unlock()
		return nil
	}
	room.TargetLanguage = target
	announce := room.IsRunning
	now := c.now()
	c.mu.Unlock()

	if announce {
		c.notify(id, systemNotice(now, fmt.Sprintf("Target language changed to %s.", domain.DisplayName(target))))
	}
	return nil
}

// GetStatus returns the running flag, languages and usage figures.
func (c *Coordinator) GetStatus(ctx context.Context, rawID string) (Status, error) {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return Status{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.roomLocked(id)
	if !ok {
		return Status{}, ErrRoomNotFound
	}
	c.ensureUsageLoadedLocked(ctx)
	now := c.now()
	c.rolloverLocked(now)
	return c.statusLocked(room, now), nil
}

// stopLocked commits a stop: this room's wall-clock contribution is folded
// into the usage counter (clamped into [0, FreeLimit]) and stop metadata is
// stamped. The caller broadcasts the returned notice after unlocking and
// decides whether to persist.
func (c *Coordinator) stopLocked(room *domain.Room, reason string, now time.Time) domain.TranslationUpdate {
	elapsed := now.Sub(room.SessionStartedAt)
	if elapsed > 0 {
		c.used += elapsed
	}
	if c.used > c.cfg.FreeLimit {
		c.used = c.cfg.FreeLimit
	}
	if c.used < 0 {
		c.used = 0
	}

	reason = normalizeReason(reason)
	room.IsRunning = false
	room.SessionStartedAt = time.Time{}
	room.LastStateChangedAt = now
	room.LastStoppedAt = now
	room.LastStopReason = reason

	msg := "Session stopped"
	if reason != "" {
		msg += ": " + reason
	}
	return systemNotice(now, msg)
}

func (c *Coordinator) statusLocked(room *domain.Room, now time.Time) Status {
	live := c.liveUsageLocked(now)
	remaining := c.cfg.FreeLimit - live
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		RoomID:           string(room.ID),
		IsRunning:        room.IsRunning,
		SourceLanguage:   room.SourceLanguage,
		TargetLanguage:   string(room.TargetLanguage),
		UsedMinutes:      round2(live.Minutes()),
		LimitMinutes:     round2(c.cfg.FreeLimit.Minutes()),
		RemainingMinutes: round2(remaining.Minutes()),
		LimitReached:     c.cfg.FreeLimit-live <= 0,
		Subscribers:      c.bcast.SubscriberCount(room.ID),
	}
}

func systemNotice(now time.Time, msg string) domain.TranslationUpdate {
	return domain.TranslationUpdate{
		SystemMessage: msg,
		IsFinal:       true,
		Timestamp:     now.UTC(),
	}
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > 120 {
		reason = reason[:120]
	}
	return reason
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
