// Package metrics exposes Prometheus instrumentation for the presence and
// now-playing pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Discord gateway
	GatewayState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "biolink_gateway_state",
			Help: "Current Discord gateway session state (0=disconnected, 5=reconnecting)",
		},
	)

	GatewayReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "biolink_gateway_reconnects_total",
			Help: "Total number of gateway reconnect attempts",
		},
	)

	GatewayFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biolink_gateway_frames_dropped_total",
			Help: "Inbound gateway frames dropped without handling",
		},
		[]string{"reason"}, // "malformed", "unknown_opcode"
	)

	GatewayHeartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biolink_gateway_heartbeats_total",
			Help: "Heartbeats sent and acknowledged",
		},
		[]string{"event"}, // "sent", "ack", "missed"
	)

	PresenceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biolink_presence_updates_total",
			Help: "Presence snapshots published by source",
		},
		[]string{"source"}, // "gateway", "poller"
	)

	// Spotify
	SpotifyTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biolink_spotify_token_refreshes_total",
			Help: "Spotify access token refresh attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	SpotifyPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biolink_spotify_polls_total",
			Help: "Currently-playing lookups by result kind",
		},
		[]string{"kind"}, // "playing", "idle", "unavailable"
	)

	// WebSocket hub
	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "biolink_ws_clients",
			Help: "Connected websocket clients",
		},
	)

	HubDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biolink_ws_dropped_total",
			Help: "Websocket subscribers dropped or messages lost",
		},
		[]string{"reason"}, // "slow_subscriber", "write_error"
	)
)
