package app

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"
)

var (
	roomIDPattern = regexp.MustCompile(`^[abcdefghjkmnpqrstuvwxyz23456789]{6}$`)
	pinPattern    = regexp.MustCompile(`^\d{6}$`)
)

func TestCreateRoomCredentials(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, Config{})
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		creds := mustCreateRoom(t, c)
		if !roomIDPattern.MatchString(creds.RoomID) {
			t.Fatalf("room id %q outside alphabet", creds.RoomID)
		}
		if !pinPattern.MatchString(creds.PIN) {
			t.Fatalf("pin %q not six digits", creds.PIN)
		}
		if seen[creds.RoomID] {
			t.Fatalf("duplicate room id %q", creds.RoomID)
		}
		seen[creds.RoomID] = true

		room := c.testRoom(t, creds.RoomID)
		if room.AccessToken == "" {
			t.Fatal("room created without access token")
		}
		if room.TargetLanguage != "sv" {
			t.Fatalf("default target = %q", room.TargetLanguage)
		}
	}
}

func TestNormalizeRoomID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"abc234", "abc234", true},
		{"  ABC234 ", "abc234", true},
		{"ab1", "", false},
		{"abcdefghjkmnpqrst", "", false},
		{"ab_234", "", false},
		{"abc 34", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeRoomID(tc.in)
		if tc.ok {
			if err != nil || string(got) != tc.want {
				t.Errorf("NormalizeRoomID(%q) = %q, %v", tc.in, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidRoomID) {
			t.Errorf("NormalizeRoomID(%q) err = %v, want ErrInvalidRoomID", tc.in, err)
		}
	}
}

func TestGetRoomAccessInfo(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, Config{})
	creds := mustCreateRoom(t, c)

	got, err := c.GetRoomAccessInfo(creds.RoomID)
	if err != nil || got.PIN != creds.PIN {
		t.Fatalf("GetRoomAccessInfo = %+v, %v", got, err)
	}
	// Lookups are case-insensitive.
	up, err := c.GetRoomAccessInfo(regexp.MustCompile(`[a-z]`).ReplaceAllStringFunc(creds.RoomID, func(s string) string {
		return string(s[0] - 'a' + 'A')
	}))
	if err != nil || up.RoomID != creds.RoomID {
		t.Fatalf("uppercase lookup = %+v, %v", up, err)
	}
	if _, err := c.GetRoomAccessInfo("zzzz99"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room err = %v", err)
	}
}

func TestListRoomsOrdering(t *testing.T) {
	c, _, _, clk := newTestCoordinator(t, Config{})
	ctx := context.Background()

	r1 := mustCreateRoom(t, c)
	clk.Advance(time.Minute)
	r2 := mustCreateRoom(t, c)
	clk.Advance(time.Minute)
	r3 := mustCreateRoom(t, c)
	clk.Advance(time.Minute)

	if _, err := c.StartSession(ctx, r2.RoomID, "", ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	list := c.ListRooms()
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].RoomID != r2.RoomID || !list[0].IsRunning {
		t.Fatalf("list[0] = %+v, want running %s", list[0], r2.RoomID)
	}
	if list[1].RoomID != r3.RoomID || list[2].RoomID != r1.RoomID {
		t.Fatalf("stopped order = %s, %s, want %s, %s", list[1].RoomID, list[2].RoomID, r3.RoomID, r1.RoomID)
	}
}

func TestPruneOnCreate(t *testing.T) {
	c, _, _, clk := newTestCoordinator(t, Config{RoomRetention: time.Hour, FreeLimit: 1000 * time.Hour})
	ctx := context.Background()

	stale := mustCreateRoom(t, c)
	running := mustCreateRoom(t, c)
	if _, err := c.StartSession(ctx, running.RoomID, "", ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	clk.Advance(2 * time.Hour)
	mustCreateRoom(t, c)

	if c.RoomExists(stale.RoomID) {
		t.Fatal("stale stopped room survived pruning")
	}
	if !c.RoomExists(running.RoomID) {
		t.Fatal("running room was pruned")
	}
}

func TestPruneMeasuresFromLastStop(t *testing.T) {
	c, _, _, clk := newTestCoordinator(t, Config{RoomRetention: time.Hour, FreeLimit: 1000 * time.Hour})
	ctx := context.Background()

	r := mustCreateRoom(t, c)
	clk.Advance(50 * time.Minute)
	if _, err := c.StartSession(ctx, r.RoomID, "", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Advance(50 * time.Minute)
	if err := c.StopSession(ctx, r.RoomID, ""); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// 100 minutes since creation but only just stopped: retention has not
	// elapsed from the stop, so the room survives.
	mustCreateRoom(t, c)
	if !c.RoomExists(r.RoomID) {
		t.Fatal("recently stopped room was pruned")
	}

	clk.Advance(61 * time.Minute)
	mustCreateRoom(t, c)
	if c.RoomExists(r.RoomID) {
		t.Fatal("room survived past retention")
	}
}
