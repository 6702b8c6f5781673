// Package api serves the HTTP surface: presence, now-playing, profile and
// links endpoints, health, metrics, and the websocket upgrade at "/".
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/discord"
	"skidoodle/biolink/internal/presence"
	"skidoodle/biolink/internal/profile"
	"skidoodle/biolink/internal/spotify"
)

// NowPlaying is the subset of *spotify.Client served over HTTP.
type NowPlaying interface {
	CurrentlyPlaying(ctx context.Context) spotify.Result
	RecentlyPlayed(ctx context.Context, limit int) ([]spotify.Track, error)
}

// PresenceReader reads the latest presence snapshot.
type PresenceReader interface {
	Read(ctx context.Context) (presence.Snapshot, bool, error)
}

// ProfileFetcher returns the tracked Discord user's profile.
type ProfileFetcher interface {
	Profile(ctx context.Context) (*discord.Profile, error)
}

// DocumentSource returns the current profile document.
type DocumentSource interface {
	Current() profile.Document
}

// Handler holds the endpoint dependencies.
type Handler struct {
	spotify  NowPlaying
	presence PresenceReader
	discord  ProfileFetcher
	docs     DocumentSource
	health   *HealthChecker
	now      func() time.Time
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("failed to encode response")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		logrus.WithError(err).Debug("failed to write response")
	}
}

// Activity serves the selected Discord activity, or null before the first
// presence arrives.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	snap, ok, err := h.presence.Read(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "presence unavailable"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, presence.NewView(snap))
}

// SpotifyCurrent serves the now-playing state. Outages answer 503 with
// status "error" so they never look like "nothing playing".
func (h *Handler) SpotifyCurrent(w http.ResponseWriter, r *http.Request) {
	res := h.spotify.CurrentlyPlaying(r.Context())
	view := spotify.NewView(res, true)

	switch res.Kind {
	case spotify.KindUnavailable:
		logrus.WithField("reason", res.Reason).Debug("now playing unavailable")
		writeJSON(w, http.StatusServiceUnavailable, view)
	case spotify.KindIdle:
		view.Timestamp = h.now().UnixMilli()
		writeJSON(w, http.StatusOK, view)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

// SpotifyRecent serves recently played tracks.
func (h *Handler) SpotifyRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	tracks, err := h.spotify.RecentlyPlayed(r.Context(), spotify.ClampRecentLimit(limit))
	if err != nil {
		logrus.WithError(err).Warn("recently played lookup failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "spotify upstream error"})
		return
	}
	if tracks == nil {
		tracks = []spotify.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// DiscordProfile serves the tracked user's public profile.
func (h *Handler) DiscordProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.discord.Profile(r.Context())
	switch {
	case errors.Is(err, discord.ErrProfileNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "discord not configured"})
	case err != nil:
		logrus.WithError(err).Warn("discord profile lookup failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "discord upstream error"})
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

// Profile serves the operator's profile record.
func (h *Handler) Profile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.docs.Current().Profile)
}

// Links serves the ordered link records.
func (h *Handler) Links(w http.ResponseWriter, _ *http.Request) {
	links := h.docs.Current().Links
	if links == nil {
		links = []profile.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

// Health reports service health. Only a fatal state answers non-200.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	report := h.health.Check()
	status := http.StatusOK
	if report.Status == HealthFatal {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
