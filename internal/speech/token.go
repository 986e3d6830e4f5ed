// Package speech issues short-lived recognition credentials for the
// presenter's browser. The server never performs recognition itself; it only
// proxies the token exchange so the subscription key stays server-side.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotConfigured = errors.New("speech credentials not configured")
	ErrFetchFailed   = errors.New("speech token fetch failed")
)

// Tokens are valid for about ten minutes; refresh when less than a minute
// remains so a client never receives an about-to-expire credential.
const (
	tokenLifetime = 10 * time.Minute
	refreshMargin = time.Minute
)

// Credential is what the recognition client needs to connect directly to the
// speech service.
type Credential struct {
	Token  string `json:"token"`
	Region string `json:"region"`
}

// Provider fetches and caches the short-lived token.
type Provider struct {
	key      string
	region   string
	endpoint string
	client   *http.Client
	now      func() time.Time

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

func New(key, region string) *Provider {
	return &Provider{
		key:      key,
		region:   region,
		endpoint: fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", region),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Configured reports whether a key and region are present. Checked before
// any network call and before a session may start.
func (p *Provider) Configured() bool {
	return p.key != "" && p.region != ""
}

// Token returns a cached credential while it has more than a minute of life
// left, fetching a fresh one otherwise.
func (p *Provider) Token(ctx context.Context) (Credential, error) {
	if !p.Configured() {
		return Credential{}, ErrNotConfigured
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Sub(p.fetchedAt) < tokenLifetime-refreshMargin {
		return Credential{Token: p.token, Region: p.region}, nil
	}

	tok, err := p.fetch(ctx)
	if err != nil {
		return Credential{}, err
	}
	p.token = tok
	p.fetchedAt = p.now()
	log.Info().Str("module", "speech").Str("region", p.region).Msg("speech token refreshed")
	return Credential{Token: tok, Region: p.region}, nil
}

func (p *Provider) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	req.Header.Set("Content-Length", "0")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return "", fmt.Errorf("%w: empty body", ErrFetchFailed)
	}
	return tok, nil
}
