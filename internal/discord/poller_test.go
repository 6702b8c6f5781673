package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"skidoodle/biolink/internal/metrics"
	"skidoodle/biolink/internal/presence"
)

type errSource struct{}

func (errSource) Fetch(context.Context) (presence.Snapshot, error) {
	return presence.Snapshot{}, errors.New("upstream down")
}

func TestPollerPublishesSyntheticSnapshot(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 34, 0, 0, time.UTC)
	pub := newRecordingPublisher()
	p := NewPoller(DemoSource{Now: func() time.Time { return now }}, pub, 0, nil)

	if p.interval != defaultPollInterval {
		t.Errorf("expected default interval, got %v", p.interval)
	}
	before := testutil.ToFloat64(metrics.PresenceUpdates.WithLabelValues("poller"))
	if !p.PollOnce(context.Background()) {
		t.Fatal("expected a publish")
	}
	if got := testutil.ToFloat64(metrics.PresenceUpdates.WithLabelValues("poller")) - before; got != 1 {
		t.Errorf("expected poller counter to increase by 1, got %v", got)
	}

	snap := pub.next(t)
	if !snap.Synthetic {
		t.Error("polled snapshot must be marked synthetic")
	}
	if snap.Activity == nil {
		t.Fatal("expected demo activity")
	}
	if !snap.UpdatedAt.Equal(now) {
		t.Errorf("expected UpdatedAt %v, got %v", now, snap.UpdatedAt)
	}
}

func TestPollerGate(t *testing.T) {
	pub := newRecordingPublisher()
	open := false
	p := NewPoller(DemoSource{}, pub, time.Minute, func() bool { return open })

	if p.PollOnce(context.Background()) {
		t.Error("expected closed gate to suppress publish")
	}
	open = true
	if !p.PollOnce(context.Background()) {
		t.Error("expected open gate to publish")
	}
}

func TestPollerSourceError(t *testing.T) {
	p := NewPoller(errSource{}, newRecordingPublisher(), time.Minute, nil)
	if p.PollOnce(context.Background()) {
		t.Error("expected no publish on source error")
	}
}

func TestPollerRunPublishesImmediately(t *testing.T) {
	pub := newRecordingPublisher()
	p := NewPoller(DemoSource{}, pub, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	pub.next(t)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
