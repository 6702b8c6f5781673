package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const playingBody = `{
  "is_playing": true,
  "progress_ms": 42000,
  "timestamp": 1700000000000,
  "item": {
    "id": "track-1",
    "name": "Song",
    "duration_ms": 180000,
    "external_urls": {"spotify": "https://open.spotify.com/track/track-1"},
    "artists": [{"name": "Artist A"}, {"name": "Artist B"}],
    "album": {"name": "Album", "images": [{"url": "https://i.scdn.co/a.jpg", "width": 640, "height": 640}]}
  }
}`

// newAPIServer serves both the token endpoint and the currently-playing
// endpoint. handler answers the latter.
func newAPIServer(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := NewTokenManager(
		Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
		WithTokenURL(srv.URL+"/api/token"),
		WithHTTPClient(srv.Client()),
	)
	return NewClient(tokens, WithAPIBaseURL(srv.URL+"/v1"), WithAPIHTTPClient(srv.Client())), &refreshes
}

func TestClient_Playing(t *testing.T) {
	c, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(playingBody))
	})

	res := c.CurrentlyPlaying(context.Background())
	if res.Kind != KindPlaying {
		t.Fatalf("expected KindPlaying, got %v (%s)", res.Kind, res.Reason)
	}
	if res.Err() != nil {
		t.Fatalf("unexpected Err: %v", res.Err())
	}
	st := res.State
	if !st.IsPlaying || st.ProgressMs != 42000 || st.Timestamp != 1700000000000 {
		t.Fatalf("unexpected state: %+v", st)
	}
	tr := st.Track
	if tr.Name != "Song" || tr.AlbumName != "Album" || tr.DurationMs != 180000 {
		t.Fatalf("unexpected track: %+v", tr)
	}
	if len(tr.Artists) != 2 || tr.Artists[1] != "Artist B" {
		t.Fatalf("unexpected artists: %v", tr.Artists)
	}
	if len(tr.AlbumImages) != 1 || tr.AlbumImages[0].Width != 640 {
		t.Fatalf("unexpected images: %+v", tr.AlbumImages)
	}
	if tr.ExternalURL != "https://open.spotify.com/track/track-1" {
		t.Fatalf("unexpected external url: %s", tr.ExternalURL)
	}
}

func TestClient_IdleVersusUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
		reason string
	}{
		{"no content", http.StatusNoContent, "", KindIdle, ""},
		{"empty ok", http.StatusOK, "  ", KindIdle, ""},
		{"null item", http.StatusOK, `{"is_playing":false,"item":null}`, KindIdle, ""},
		{"server error", http.StatusBadGateway, `{"error":{"status":502}}`, KindUnavailable, "upstream status 502"},
		{"html body", http.StatusOK, "<html><body>Service Unavailable</body></html>", KindUnavailable, "upstream parse error"},
		{"truncated json", http.StatusOK, `{"is_playing": tr`, KindUnavailable, "upstream parse error"},
		{"rate limited", http.StatusTooManyRequests, "", KindUnavailable, "upstream status 429"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res := c.CurrentlyPlaying(context.Background())
			if res.Kind != tt.kind {
				t.Fatalf("expected kind %v, got %v (%s)", tt.kind, res.Kind, res.Reason)
			}
			if res.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, res.Reason)
			}
			if tt.kind == KindIdle && res.Err() != nil {
				t.Fatalf("idle result must not carry an error: %v", res.Err())
			}
			if tt.kind == KindUnavailable && res.Err() == nil {
				t.Fatal("unavailable result must carry an error")
			}
			if res.Kind.String() == idle().Kind.String() && tt.kind == KindUnavailable {
				t.Fatal("unavailable rendered with the idle status")
			}
		})
	}
}

func TestClient_ParseErrorIsWrapped(t *testing.T) {
	c, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html>"))
	})
	res := c.CurrentlyPlaying(context.Background())
	if !errors.Is(res.Err(), ErrUpstreamParse) {
		t.Fatalf("expected ErrUpstreamParse, got %v", res.Err())
	}
}

func TestClient_NotConfigured(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(NewTokenManager(Credentials{}, WithTokenURL(srv.URL)), WithAPIBaseURL(srv.URL))
	res := c.CurrentlyPlaying(context.Background())
	if res.Kind != KindUnavailable || res.Reason != "not configured" {
		t.Fatalf("expected unavailable/not configured, got %v/%s", res.Kind, res.Reason)
	}
	if !errors.Is(res.Err(), ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", res.Err())
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", hits.Load())
	}
}

func TestClient_UnauthorizedInvalidatesToken(t *testing.T) {
	var calls atomic.Int32
	c, refreshes := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	res := c.CurrentlyPlaying(context.Background())
	if res.Kind != KindUnavailable || res.Reason != "auth failure" {
		t.Fatalf("expected auth failure, got %v/%s", res.Kind, res.Reason)
	}
	if !errors.Is(res.Err(), ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", res.Err())
	}

	res = c.CurrentlyPlaying(context.Background())
	if res.Kind != KindIdle {
		t.Fatalf("expected idle after re-auth, got %v/%s", res.Kind, res.Reason)
	}
	if got := refreshes.Load(); got != 2 {
		t.Fatalf("expected a second refresh after 401, got %d", got)
	}
}

func TestClient_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	c, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		c.CurrentlyPlaying(context.Background())
	}
	res := c.CurrentlyPlaying(context.Background())
	if res.Kind != KindUnavailable || res.Reason != "circuit open" {
		t.Fatalf("expected circuit open, got %v/%s", res.Kind, res.Reason)
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("expected 5 upstream calls before opening, got %d", got)
	}
}

func TestRawPrefix(t *testing.T) {
	long := strings.Repeat("x", 500)
	if got := rawPrefix([]byte(long)); len(got) != rawPrefixLength {
		t.Fatalf("expected prefix of %d bytes, got %d", rawPrefixLength, len(got))
	}
	if got := rawPrefix([]byte("short")); got != "short" {
		t.Fatalf("expected short body unchanged, got %q", got)
	}
}
