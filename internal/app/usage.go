package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
)

func periodCodeOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ensureUsageLoadedLocked hydrates the usage counter from the store on first
// access. A store failure degrades to zero usage; the in-memory counter is
// authoritative for the life of the process.
func (c *Coordinator) ensureUsageLoadedLocked(ctx context.Context) {
	if c.loaded {
		return
	}
	period := periodCodeOf(c.now())
	used, err := c.store.GetUsed(ctx, period)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.usage").Str("period", period).Msg("usage read failed, assuming zero")
		used = 0
	}
	if used < 0 {
		used = 0
	}
	if used > c.cfg.FreeLimit {
		used = c.cfg.FreeLimit
	}
	c.used = used
	c.periodCode = period
	c.loaded = true
}

// rolloverLocked resets the counter when the calendar month changes and
// re-anchors running sessions to now, so time before the boundary is not
// double-counted and time after it starts fresh.
func (c *Coordinator) rolloverLocked(now time.Time) {
	if !c.loaded {
		return
	}
	period := periodCodeOf(now)
	if period == c.periodCode {
		return
	}
	c.periodCode = period
	c.used = 0
	c.rooms.Range(func(_, v any) bool {
		room := v.(*domain.Room)
		if room.IsRunning {
			room.SessionStartedAt = now
		}
		return true
	})
	log.Info().Str("module", "app.usage").Str("period", period).Msg("usage period rolled over")
}

// liveUsageLocked is the committed counter plus the elapsed time of every
// currently running room, clamped into [0, FreeLimit].
func (c *Coordinator) liveUsageLocked(now time.Time) time.Duration {
	total := c.used
	c.rooms.Range(func(_, v any) bool {
		room := v.(*domain.Room)
		if room.IsRunning {
			if e := now.Sub(room.SessionStartedAt); e > 0 {
				total += e
			}
		}
		return true
	})
	if total > c.cfg.FreeLimit {
		total = c.cfg.FreeLimit
	}
	if total < 0 {
		total = 0
	}
	return total
}

func (c *Coordinator) anyRunningLocked() bool {
	running := false
	c.rooms.Range(func(_, v any) bool {
		if v.(*domain.Room).IsRunning {
			running = true
			return false
		}
		return true
	})
	return running
}

// ensureMonitorLocked spawns the usage monitor if it is not already live.
// The cancel func doubles as the "monitor is running" flag.
func (c *Coordinator) ensureMonitorLocked() {
	if c.monitorCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	c.monitorCancel = cancel
	go c.monitor(ctx, c.now())
	log.Debug().Str("module", "app.usage").Msg("usage monitor started")
}

// monitor is the usage accrual loop: a fast correctness tick enforcing the
// quota and a slower persistence cadence bounding store write volume. It
// exits once no room is running and is re-spawned by the next session start.
// started is captured by the spawner under the gate so the first persistence
// window is anchored at spawn time, not at the goroutine's first schedule.
func (c *Coordinator) monitor(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(c.cfg.UsageTick)
	defer ticker.Stop()
	lastPersist := started
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if idle := c.tick(ctx, &lastPersist); idle {
				return
			}
		}
	}
}

// tick runs one monitor iteration. It reports true when the loop should exit
// because nothing is running anymore.
func (c *Coordinator) tick(ctx context.Context, lastPersist *time.Time) bool {
	c.mu.Lock()
	now := c.now()
	c.ensureUsageLoadedLocked(ctx)
	c.rolloverLocked(now)

	if !c.anyRunningLocked() {
		// Release the child context registered on runCtx; the loop is
		// about to return anyway.
		if c.monitorCancel != nil {
			c.monitorCancel()
		}
		c.monitorCancel = nil
		c.mu.Unlock()
		log.Debug().Str("module", "app.usage").Msg("usage monitor idle, exiting")
		return true
	}

	type note struct {
		id  domain.RoomID
		upd domain.TranslationUpdate
	}
	var notes []note
	persist := false
	forced := false
	saveVal := time.Duration(0)

	live := c.liveUsageLocked(now)
	if live >= c.cfg.FreeLimit {
		forced = true
		// Quota spent: stop everyone, suppress per-room persistence and
		// write the consolidated total once below.
		c.rooms.Range(func(_, v any) bool {
			room := v.(*domain.Room)
			if room.IsRunning {
				notes = append(notes, note{room.ID, c.stopLocked(room, "free minutes exhausted", now)})
			}
			return true
		})
		persist = true
		saveVal = c.used
		log.Warn().Str("module", "app.usage").Int("stopped", len(notes)).Msg("free minutes exhausted, force-stopped all rooms")
	} else if now.Sub(*lastPersist) >= c.cfg.PersistEvery {
		persist = true
		saveVal = live
	}
	period := c.periodCode
	hook := c.onForceStop
	c.mu.Unlock()

	for _, n := range notes {
		c.notify(n.id, n.upd)
	}
	if forced && len(notes) > 0 && hook != nil {
		hook(len(notes))
	}
	if persist {
		*lastPersist = now
		if err := c.store.SaveUsed(ctx, period, saveVal); err != nil {
			log.Warn().Err(err).Str("module", "app.usage").Str("period", period).Msg("usage save failed")
		}
	}
	return false
}
