package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics, refresh func()) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler(refresh).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scrape = %d", w.Code)
	}
	return w.Body.String()
}

func TestScrapeRefreshesGauges(t *testing.T) {
	m := New()
	refreshed := false
	body := scrape(t, m, func() {
		refreshed = true
		m.SetRoomsRunning(3)
		m.SetUsageSeconds(120.5)
	})
	if !refreshed {
		t.Fatal("refresh callback not invoked")
	}
	if !strings.Contains(body, "babbler_rooms_running 3") {
		t.Fatalf("body missing gauge:\n%s", body)
	}
	if !strings.Contains(body, "babbler_usage_seconds 120.5") {
		t.Fatalf("body missing usage gauge:\n%s", body)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncSessionsStarted()
	m.IncSessionsStarted()
	m.IncSessionsStopped()
	m.AddForceStops(2)
	m.IncBroadcasts()

	body := scrape(t, m, nil)
	for _, want := range []string{
		"babbler_sessions_started_total 2",
		"babbler_sessions_stopped_total 1",
		"babbler_force_stops_total 2",
		"babbler_broadcasts_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}
