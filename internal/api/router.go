package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/websocket"
)

// Options wires the router's dependencies.
type Options struct {
	Spotify  NowPlaying
	Presence PresenceReader
	Discord  ProfileFetcher
	Docs     DocumentSource
	Health   *HealthChecker
	// Websocket serves upgrade requests at "/".
	Websocket http.Handler

	AllowedOrigins     []string
	RateLimitPerMinute int
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	h := &Handler{
		spotify:  opts.Spotify,
		presence: opts.Presence,
		discord:  opts.Discord,
		docs:     opts.Docs,
		health:   opts.Health,
		now:      time.Now,
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		}

		r.Get("/discord/activity", h.Activity)
		r.Get("/discord/profile", h.DiscordProfile)
		r.Get("/spotify/current", h.SpotifyCurrent)
		r.Get("/spotify/recent", h.SpotifyRecent)
		r.Get("/profile", h.Profile)
		r.Get("/links", h.Links)
	})

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsUpgrade(r) && opts.Websocket != nil {
			opts.Websocket.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Upgrade", "websocket")
		w.Header().Set("Connection", "Upgrade")
		w.WriteHeader(http.StatusUpgradeRequired)
		if _, err := w.Write([]byte("426 Upgrade Required")); err != nil {
			logrus.WithError(err).Warn("failed to write upgrade required response")
		}
	})

	return r
}
