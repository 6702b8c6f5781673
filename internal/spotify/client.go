package spotify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"skidoodle/biolink/internal/metrics"
)

const (
	apiBaseURL = "https://api.spotify.com/v1"

	maxBodySize     = 1 << 20
	rawPrefixLength = 120
)

var (
	// ErrUpstreamParse is returned when Spotify answers with something
	// other than a JSON object.
	ErrUpstreamParse = errors.New("upstream parse error")
	// ErrTransport wraps network failures talking to Spotify.
	ErrTransport = errors.New("transport error")
)

// Kind classifies a currently-playing lookup.
type Kind int

const (
	// KindPlaying carries a PlaybackState with a track (possibly paused).
	KindPlaying Kind = iota
	// KindIdle means nothing is playing.
	KindIdle
	// KindUnavailable means the state could not be determined.
	KindUnavailable
)

// String returns the wire status for the kind.
func (k Kind) String() string {
	switch k {
	case KindPlaying:
		return "ok"
	case KindIdle:
		return "idle"
	default:
		return "error"
	}
}

// Result is the outcome of CurrentlyPlaying. State is set only for
// KindPlaying; Reason only for KindUnavailable.
type Result struct {
	Kind   Kind
	State  *PlaybackState
	Reason string
	err    error
}

// Err returns the underlying failure for an unavailable result.
func (r Result) Err() error {
	if r.Kind != KindUnavailable {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Reason)
}

// Playback returns the state to display. Idle and unavailable results
// both render as nothing playing; use Kind to tell them apart.
func (r Result) Playback() PlaybackState {
	if r.Kind == KindPlaying && r.State != nil {
		return *r.State
	}
	return PlaybackState{}
}

func idle() Result {
	return Result{Kind: KindIdle}
}

func unavailable(reason string, err error) Result {
	return Result{Kind: KindUnavailable, Reason: reason, err: err}
}

// upstreamStatusError is a non-2xx answer from the API.
type upstreamStatusError struct {
	status int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

// Client is a thread-safe client for the now-playing endpoints.
type Client struct {
	tokens     *TokenManager
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithAPIBaseURL overrides the Web API base URL.
func WithAPIBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithAPIHTTPClient sets the client used for API requests.
func WithAPIHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a Spotify API client backed by tokens.
// The returned client is safe for concurrent use.
func NewClient(tokens *TokenManager, opts ...ClientOption) *Client {
	c := &Client{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    apiBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "spotify-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only transport errors and 5xx count against the upstream.
			var se *upstreamStatusError
			if errors.As(err, &se) {
				return se.status < 500
			}
			return err == nil || errors.Is(err, ErrUpstreamParse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"component": "spotify",
				"breaker":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	return c
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c.tokens.Configured()
}

// CurrentlyPlaying fetches the user's currently playing track.
func (c *Client) CurrentlyPlaying(ctx context.Context) Result {
	res := c.currentlyPlaying(ctx)
	switch res.Kind {
	case KindPlaying:
		metrics.SpotifyPolls.WithLabelValues("playing").Inc()
	case KindIdle:
		metrics.SpotifyPolls.WithLabelValues("idle").Inc()
	default:
		metrics.SpotifyPolls.WithLabelValues("unavailable").Inc()
	}
	return res
}

func (c *Client) currentlyPlaying(ctx context.Context) Result {
	log := logrus.WithField("component", "spotify")

	token, err := c.tokens.Token(ctx)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return unavailable("not configured", err)
	case err != nil:
		return unavailable("auth failure", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, c.baseURL+"/me/player/currently-playing", token)
	})
	if err != nil {
		var se *upstreamStatusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return unavailable("circuit open", err)
		case errors.As(err, &se) && se.status == http.StatusUnauthorized:
			c.tokens.Invalidate()
			return unavailable("auth failure", fmt.Errorf("%w: %v", ErrAuthFailure, err))
		case errors.As(err, &se):
			return unavailable(se.Error(), err)
		case errors.Is(err, ErrUpstreamParse):
			log.WithField("body", rawPrefix(body)).Warn("spotify returned a non-JSON body")
			return unavailable(ErrUpstreamParse.Error(), err)
		default:
			log.WithError(err).Warn("failed to get currently playing track")
			return unavailable(ErrTransport.Error(), err)
		}
	}

	// 204 No Content and an empty 200 both mean nothing is playing.
	if len(body) == 0 {
		return idle()
	}

	var cp currentlyPlaying
	if err := json.Unmarshal(body, &cp); err != nil {
		log.WithError(err).WithField("body", rawPrefix(body)).Warn("failed to decode currently playing response")
		return unavailable(ErrUpstreamParse.Error(), fmt.Errorf("%w: %v", ErrUpstreamParse, err))
	}
	if cp.Item == nil {
		return idle()
	}

	return Result{
		Kind: KindPlaying,
		State: &PlaybackState{
			IsPlaying:  cp.IsPlaying,
			Track:      cp.Item.toTrack(),
			ProgressMs: cp.ProgressMs,
			Timestamp:  cp.Timestamp,
		},
	}
}

// get performs an authorized GET and returns the body. A non-JSON body
// is returned alongside ErrUpstreamParse so callers can log it.
func (c *Client) get(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close spotify api response body")
		}
	}()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &upstreamStatusError{status: resp.StatusCode}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return body, ErrUpstreamParse
	}
	return trimmed, nil
}

func rawPrefix(body []byte) string {
	if len(body) > rawPrefixLength {
		body = body[:rawPrefixLength]
	}
	return string(body)
}
