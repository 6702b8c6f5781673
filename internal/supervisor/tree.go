// Package supervisor runs the long-lived services under a suture tree.
package supervisor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay float64
	// FailureBackoff is the wait once the threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout bounds how long each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is organized into three layers:
//   - presence: presence store, gateway session, fallback poller, relay
//   - spotify: now-playing poller
//   - api: websocket hub, profile watcher, HTTP server
type Tree struct {
	root     *suture.Supervisor
	presence *suture.Supervisor
	spotify  *suture.Supervisor
	api      *suture.Supervisor
}

// NewTree creates a supervisor tree. Zero config fields use defaults.
func NewTree(log *logrus.Entry, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	rootSpec := suture.Spec{
		EventHook:        EventHook(log),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	// Children inherit the EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	t := &Tree{
		root:     suture.New("biolink", rootSpec),
		presence: suture.New("presence-layer", childSpec),
		spotify:  suture.New("spotify-layer", childSpec),
		api:      suture.New("api-layer", childSpec),
	}
	t.root.Add(t.presence)
	t.root.Add(t.spotify)
	t.root.Add(t.api)
	return t
}

// AddPresenceService adds a service to the presence layer.
func (t *Tree) AddPresenceService(svc suture.Service) suture.ServiceToken {
	return t.presence.Add(svc)
}

// AddSpotifyService adds a service to the spotify layer.
func (t *Tree) AddSpotifyService(svc suture.Service) suture.ServiceToken {
	return t.spotify.Add(svc)
}

// AddAPIService adds a service to the api layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled or a service terminates it.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// EventHook logs supervisor events through logrus.
func EventHook(log *logrus.Entry) suture.EventHook {
	return func(e suture.Event) {
		entry := log.WithFields(logrus.Fields(e.Map()))
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			entry.Error(e.String())
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			entry.Warn(e.String())
		default:
			entry.Info(e.String())
		}
	}
}
