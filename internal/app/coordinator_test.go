package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MRCCollective/Babbler/internal/domain"
)

type broadcastEvent struct {
	Room domain.RoomID
	Upd  domain.TranslationUpdate
}

type fakeBroadcast struct {
	mu     sync.Mutex
	events []broadcastEvent
	fail   bool
}

func (f *fakeBroadcast) Broadcast(id domain.RoomID, upd domain.TranslationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broadcast down")
	}
	f.events = append(f.events, broadcastEvent{Room: id, Upd: upd})
	return nil
}

func (f *fakeBroadcast) SubscriberCount(id domain.RoomID) int { return 0 }

func (f *fakeBroadcast) Events() []broadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broadcastEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeBroadcast) SystemMessages(room domain.RoomID) []string {
	var out []string
	for _, e := range f.Events() {
		if e.Room == room && e.Upd.SystemMessage != "" {
			out = append(out, e.Upd.SystemMessage)
		}
	}
	return out
}

func (f *fakeBroadcast) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type savedRec struct {
	Period string
	Used   time.Duration
}

type fakeStore struct {
	mu      sync.Mutex
	data    map[string]time.Duration
	getErr  error
	saveErr error
	saves   []savedRec
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]time.Duration)}
}

func (f *fakeStore) GetUsed(ctx context.Context, period string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.data[period], nil
}

func (f *fakeStore) SaveUsed(ctx context.Context, period string, used time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[period] = used
	f.saves = append(f.saves, savedRec{Period: period, Used: used})
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) lastSave() (savedRec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return savedRec{}, false
	}
	return f.saves[len(f.saves)-1], true
}

type fakeSpeech struct{ configured bool }

func (f fakeSpeech) Configured() bool { return f.configured }

// fakeClock makes usage accrual deterministic; the monitor still ticks on
// real time, but every duration it observes comes from here.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestCoordinator wires a coordinator with fakes. The monitor tick
// defaults to an hour so background ticks cannot interfere; tests that
// exercise the monitor pass their own short tick.
func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *fakeBroadcast, *fakeStore, *fakeClock) {
	t.Helper()
	if cfg.FreeLimit == 0 {
		cfg.FreeLimit = time.Hour
	}
	if cfg.UsageTick == 0 {
		cfg.UsageTick = time.Hour
	}
	if cfg.PersistEvery == 0 {
		cfg.PersistEvery = time.Hour
	}
	b := &fakeBroadcast{}
	s := newFakeStore()
	clk := newFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := NewCoordinator(ctx, cfg, b, s, fakeSpeech{configured: true})
	c.now = clk.Now
	return c, b, s, clk
}

func mustCreateRoom(t *testing.T, c *Coordinator) RoomCredentials {
	t.Helper()
	creds, err := c.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return creds
}

func (c *Coordinator) testRoom(t *testing.T, id string) *domain.Room {
	t.Helper()
	v, ok := c.rooms.Load(domain.RoomID(id))
	if !ok {
		t.Fatalf("room %s not in registry", id)
	}
	return v.(*domain.Room)
}

func (c *Coordinator) usedNow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
