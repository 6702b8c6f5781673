package discord

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/metrics"
	"skidoodle/biolink/internal/presence"
)

const defaultPollInterval = 15 * time.Second

// Source produces a presence snapshot for the fallback poller.
type Source interface {
	Fetch(ctx context.Context) (presence.Snapshot, error)
}

// DemoSource returns a fixed, clearly synthetic activity. There is no
// public REST endpoint for another user's live activity, so real data
// needs the gateway session.
type DemoSource struct {
	Now func() time.Time
}

// Fetch implements Source.
func (d DemoSource) Fetch(_ context.Context) (presence.Snapshot, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	t := now()
	return presence.Snapshot{
		Status: presence.StatusOnline,
		Activity: &presence.Activity{
			Name:      "Visual Studio Code",
			Kind:      presence.KindGame,
			Details:   "Demo activity",
			State:     "Synthetic data, gateway not connected",
			StartedAt: t.Truncate(time.Hour),
		},
		Synthetic: true,
		UpdatedAt: t,
	}, nil
}

// Poller republishes presence from a Source on a fixed interval while the
// push path is unavailable.
type Poller struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	// gate reports whether polling should publish; nil always publishes.
	gate func() bool
}

// NewPoller creates a fallback poller. gate is consulted before every
// publish so the poller stays quiet while a healthy gateway is connected.
func NewPoller(source Source, publisher Publisher, interval time.Duration, gate func() bool) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		source:    source,
		publisher: publisher,
		interval:  interval,
		gate:      gate,
	}
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	log := logrus.WithField("component", "presence-poller")
	log.WithField("interval", p.interval).Info("presence poller started")
	defer log.Info("presence poller stopped")

	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches and publishes one snapshot. It reports whether a
// snapshot was published.
func (p *Poller) PollOnce(ctx context.Context) bool {
	log := logrus.WithField("component", "presence-poller")

	if p.gate != nil && !p.gate() {
		log.Debug("gateway healthy, skipping poll")
		return false
	}

	snap, err := p.source.Fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("presence poll failed")
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.publisher.Publish(pctx, snap); err != nil {
		log.WithError(err).Warn("failed to publish polled presence")
		return false
	}
	metrics.PresenceUpdates.WithLabelValues("poller").Inc()
	return true
}

// Serve implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	return p.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (p *Poller) String() string {
	return "presence-poller"
}
