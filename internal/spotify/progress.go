package spotify

import (
	"sync"
	"time"
)

// Interpolator advances playback progress in real time between polls.
// Estimates are never authoritative and are clamped to the track length.
type Interpolator struct {
	mu        sync.Mutex
	state     PlaybackState
	has       bool
	fetchedAt time.Time
}

// Update records a new authoritative state observed at receivedAt. The
// baseline moves when the (ProgressMs, Timestamp) pair changes or playback
// starts, and Update reports whether it did.
func (i *Interpolator) Update(state PlaybackState, receivedAt time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	reset := !i.has ||
		state.ProgressMs != i.state.ProgressMs ||
		state.Timestamp != i.state.Timestamp ||
		(state.IsPlaying && !i.state.IsPlaying)
	if reset {
		i.fetchedAt = receivedAt
	}
	i.state = state
	i.has = true
	return reset
}

// Playing reports whether interpolation is active.
func (i *Interpolator) Playing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.playing()
}

func (i *Interpolator) playing() bool {
	return i.has && i.state.IsPlaying && i.state.Track != nil
}

// Estimate returns the progress at t in milliseconds.
func (i *Interpolator) Estimate(t time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.playing() {
		return i.state.ProgressMs
	}

	elapsed := t.Sub(i.fetchedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	est := i.state.ProgressMs + int(elapsed/time.Millisecond)
	if est < 0 {
		est = 0
	}
	if d := i.state.Track.DurationMs; est > d {
		est = d
	}
	return est
}

// State returns the last authoritative state.
func (i *Interpolator) State() (PlaybackState, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state, i.has
}
