package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// tokenServer counts issue calls and hands out tok-1, tok-2, ...
type tokenServer struct {
	mu    sync.Mutex
	calls int
	key   string
	srv   *httptest.Server
}

func newTokenServer(t *testing.T, key string) *tokenServer {
	t.Helper()
	ts := &tokenServer{key: key}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != ts.key {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ts.mu.Lock()
		ts.calls++
		n := ts.calls
		ts.mu.Unlock()
		fmt.Fprintf(w, "tok-%d", n)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) callCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.calls
}

func newTestProvider(t *testing.T, ts *tokenServer) (*Provider, *time.Duration) {
	t.Helper()
	p := New("secret-key", "northeurope")
	p.endpoint = ts.srv.URL
	base := time.Now()
	offset := new(time.Duration)
	p.now = func() time.Time { return base.Add(*offset) }
	return p, offset
}

func TestConfigured(t *testing.T) {
	if New("", "").Configured() || New("k", "").Configured() || New("", "r").Configured() {
		t.Fatal("partial credentials reported configured")
	}
	if !New("k", "r").Configured() {
		t.Fatal("full credentials reported unconfigured")
	}
}

func TestTokenNotConfigured(t *testing.T) {
	p := New("", "")
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestTokenFetchAndCache(t *testing.T) {
	ts := newTokenServer(t, "secret-key")
	p, offset := newTestProvider(t, ts)
	ctx := context.Background()

	cred, err := p.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if cred.Token != "tok-1" || cred.Region != "northeurope" {
		t.Fatalf("cred = %+v", cred)
	}

	// Within the token's lifetime the cached value is served.
	*offset = 5 * time.Minute
	cred, err = p.Token(ctx)
	if err != nil || cred.Token != "tok-1" {
		t.Fatalf("cached = %+v, %v", cred, err)
	}
	if ts.callCount() != 1 {
		t.Fatalf("issue calls = %d, want 1", ts.callCount())
	}

	// Inside the refresh margin a new token is fetched.
	*offset = tokenLifetime - 30*time.Second
	cred, err = p.Token(ctx)
	if err != nil || cred.Token != "tok-2" {
		t.Fatalf("refreshed = %+v, %v", cred, err)
	}
	if ts.callCount() != 2 {
		t.Fatalf("issue calls = %d, want 2", ts.callCount())
	}
}

func TestTokenFetchRejected(t *testing.T) {
	ts := newTokenServer(t, "other-key")
	p, _ := newTestProvider(t, ts)

	if _, err := p.Token(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestTokenEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p := New("k", "r")
	p.endpoint = srv.URL
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("err = %v", err)
	}
}
