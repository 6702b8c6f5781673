package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/spotify"
)

// NowPlaying is the subset of *spotify.Client the poller needs.
type NowPlaying interface {
	CurrentlyPlaying(ctx context.Context) spotify.Result
}

// Poller is responsible for fetching data from the Spotify API periodically.
type Poller struct {
	client   NowPlaying
	hub      *Hub
	interval time.Duration
	realtime bool
	now      func() time.Time

	progress spotify.Interpolator

	mu         sync.RWMutex
	lastResult *spotify.Result
}

// NewPoller creates a new Poller. In realtime mode interpolated progress
// is broadcast every second between polls.
func NewPoller(client NowPlaying, hub *Hub, interval time.Duration, realtime bool) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		client:   client,
		hub:      hub,
		interval: interval,
		realtime: realtime,
		now:      time.Now,
	}
}

// Run starts the polling loop. It must be run in a separate goroutine.
func (p *Poller) Run(ctx context.Context) error {
	log := logrus.WithField("component", "spotify-poller")
	log.WithField("interval", p.interval).Info("poller started")
	defer log.Info("poller stopped")

	p.UpdateState(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var progressC <-chan time.Time
	if p.realtime {
		progressTicker := time.NewTicker(time.Second)
		defer progressTicker.Stop()
		progressC = progressTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.UpdateState(ctx)
		case t := <-progressC:
			p.broadcastProgress(t)
		}
	}
}

// UpdateState fetches the latest state, compares it, and broadcasts if needed.
func (p *Poller) UpdateState(ctx context.Context) {
	log := logrus.WithField("component", "spotify-poller")

	res := p.client.CurrentlyPlaying(ctx)
	if res.Kind == spotify.KindUnavailable {
		log.WithField("reason", res.Reason).Debug("now playing unavailable")
	}

	reset := p.progress.Update(res.Playback(), p.now())

	p.mu.Lock()
	hasChanged := p.hasStateChanged(res, reset)
	if hasChanged {
		p.lastResult = &res
	}
	p.mu.Unlock()

	if hasChanged {
		fields := logrus.Fields{"status": res.Kind.String()}
		if st := res.Playback(); st.Track != nil {
			fields["track"] = st.Track.Name
			fields["isPlaying"] = st.IsPlaying
		}
		log.WithFields(fields).Info("state changed, broadcasting update")
		p.hub.Broadcast(Message{Type: TypeSpotify, Data: spotify.NewView(res, p.realtime)})
	}
}

// LastState returns the cached state as an initial websocket message.
func (p *Poller) LastState(_ context.Context) (Message, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.lastResult == nil {
		return Message{}, false
	}
	view := spotify.NewView(*p.lastResult, p.realtime)
	if p.realtime && view.ProgressMs != nil {
		est := p.progress.Estimate(p.now())
		view.ProgressMs = &est
	}
	return Message{Type: TypeSpotify, Data: view}, true
}

func (p *Poller) broadcastProgress(t time.Time) {
	if !p.progress.Playing() {
		return
	}
	st, _ := p.progress.State()
	p.hub.Broadcast(Message{
		Type: TypeProgress,
		Data: progressData{ProgressMs: p.progress.Estimate(t), TrackID: st.Track.ID},
	})
}

// hasStateChanged compares the new result against the cached one.
// This function must be called within a lock.
func (p *Poller) hasStateChanged(current spotify.Result, reset bool) bool {
	if p.lastResult == nil {
		return true
	}
	last := *p.lastResult
	if last.Kind != current.Kind {
		return true
	}
	if current.Kind == spotify.KindUnavailable {
		return last.Reason != current.Reason
	}
	if p.realtime && reset && current.Kind == spotify.KindPlaying {
		return true
	}
	prev, cur := last.Playback(), current.Playback()
	if prev.IsPlaying != cur.IsPlaying {
		return true
	}
	if (prev.Track == nil) != (cur.Track == nil) {
		return true
	}
	if prev.Track != nil && cur.Track != nil && prev.Track.ID != cur.Track.ID {
		return true
	}
	return false
}

// Serve implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	return p.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (p *Poller) String() string {
	return "spotify-poller"
}
