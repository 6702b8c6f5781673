package api

import (
	"sync/atomic"
	"time"

	"skidoodle/biolink/internal/discord"
)

// Health states reported at /health.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthFatal    = "fatal"
)

// HealthReport is the /health body.
type HealthReport struct {
	Status  string `json:"status"`
	Gateway string `json:"gateway,omitempty"`
	Spotify bool   `json:"spotify"`
	Uptime  string `json:"uptime"`
	Error   string `json:"error,omitempty"`
}

// GatewayState reports the current gateway session state.
type GatewayState interface {
	State() discord.SessionState
}

// HealthChecker derives service health from component state.
type HealthChecker struct {
	gateway GatewayState
	spotify bool
	started time.Time
	now     func() time.Time

	fatal atomic.Pointer[string]
}

// NewHealthChecker creates a checker. gateway may be nil when the gateway
// is disabled.
func NewHealthChecker(gateway GatewayState, spotifyConfigured bool) *HealthChecker {
	return &HealthChecker{
		gateway: gateway,
		spotify: spotifyConfigured,
		started: time.Now(),
		now:     time.Now,
	}
}

// SetFatal marks the service as permanently failed.
func (c *HealthChecker) SetFatal(err error) {
	msg := err.Error()
	c.fatal.Store(&msg)
}

// Check builds the current report.
func (c *HealthChecker) Check() HealthReport {
	report := HealthReport{
		Status:  HealthOK,
		Spotify: c.spotify,
		Uptime:  c.now().Sub(c.started).Round(time.Second).String(),
	}
	if !c.spotify {
		report.Status = HealthDegraded
	}
	if c.gateway != nil {
		st := c.gateway.State()
		report.Gateway = st.String()
		if st != discord.StateReady {
			report.Status = HealthDegraded
		}
	}
	if msg := c.fatal.Load(); msg != nil {
		report.Status = HealthFatal
		report.Error = *msg
	}
	return report
}
