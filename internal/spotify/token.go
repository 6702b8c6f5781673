package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"skidoodle/biolink/internal/metrics"
)

const (
	tokenURL = "https://accounts.spotify.com/api/token"

	// DefaultExpiryMargin is subtracted from the server-reported lifetime.
	DefaultExpiryMargin = 60 * time.Second

	refreshTimeout = 15 * time.Second
)

var (
	// ErrNotConfigured is returned when any Spotify credential is missing.
	ErrNotConfigured = errors.New("spotify credentials not configured")
	// ErrAuthFailure is returned when the refresh grant is rejected.
	ErrAuthFailure = errors.New("spotify auth failure")
)

// Credentials are the OAuth2 client and refresh token for one account.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Configured reports whether all three credentials are present.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

type accessToken struct {
	value     string
	expiresAt time.Time
}

// TokenManager caches one access token and refreshes it on demand.
// Concurrent callers share a single in-flight refresh.
type TokenManager struct {
	conf       *oauth2.Config
	configured bool
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time

	mu           sync.Mutex
	refreshToken string
	cached       *accessToken

	group singleflight.Group
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenURL overrides the authorization server's token endpoint.
func WithTokenURL(u string) TokenOption {
	return func(m *TokenManager) { m.conf.Endpoint.TokenURL = u }
}

// WithHTTPClient sets the client used for refresh requests.
func WithHTTPClient(c *http.Client) TokenOption {
	return func(m *TokenManager) { m.httpClient = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithExpiryMargin sets the safety margin before expiry.
func WithExpiryMargin(d time.Duration) TokenOption {
	return func(m *TokenManager) { m.margin = d }
}

// NewTokenManager creates a manager for the refresh token flow.
func NewTokenManager(creds Credentials, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		configured:   creds.Configured(),
		httpClient:   &http.Client{Timeout: refreshTimeout},
		margin:       DefaultExpiryMargin,
		now:          time.Now,
		refreshToken: creds.RefreshToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether the manager has credentials to refresh with.
func (m *TokenManager) Configured() bool {
	return m.configured
}

// Token returns a valid access token, refreshing it if needed.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if !m.configured {
		return "", ErrNotConfigured
	}
	if v, ok := m.valid(); ok {
		return v, nil
	}

	ch := m.group.DoChan("refresh", func() (any, error) {
		// Another flight may have finished between the check above and now.
		if v, ok := m.valid(); ok {
			return v, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token so the next call refreshes.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// TokenSource adapts the manager to oauth2.TokenSource.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, m: m}
}

func (m *TokenManager) valid() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return "", false
	}
	if !m.now().Before(m.cached.expiresAt) {
		m.cached = nil
		return "", false
	}
	return m.cached.value, true
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	log := logrus.WithField("component", "spotify-token")

	m.mu.Lock()
	refreshToken := m.refreshToken
	m.mu.Unlock()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	requestedAt := m.now()
	tok, err := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		metrics.SpotifyTokenRefreshes.WithLabelValues("failure").Inc()
		log.WithError(err).Warn("token refresh failed")
		return "", fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	if tok.AccessToken == "" {
		metrics.SpotifyTokenRefreshes.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: response missing access_token", ErrAuthFailure)
	}

	expiry := tok.Expiry
	if tok.ExpiresIn > 0 {
		expiry = requestedAt.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if expiry.IsZero() {
		expiry = requestedAt.Add(time.Hour)
	}

	// A token shorter-lived than the margin is kept for half its lifetime.
	margin := m.margin
	if half := expiry.Sub(requestedAt) / 2; margin > half {
		margin = max(half, 0)
	}

	m.mu.Lock()
	m.cached = &accessToken{value: tok.AccessToken, expiresAt: expiry.Add(-margin)}
	if tok.RefreshToken != "" && tok.RefreshToken != m.refreshToken {
		m.refreshToken = tok.RefreshToken
		log.Info("refresh token rotated")
	}
	expiresAt := m.cached.expiresAt
	m.mu.Unlock()

	metrics.SpotifyTokenRefreshes.WithLabelValues("success").Inc()
	log.WithField("expiresAt", expiresAt.Format(time.RFC3339)).Debug("access token refreshed")
	return tok.AccessToken, nil
}

type tokenSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	v, err := s.m.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: v, TokenType: "Bearer"}, nil
}
