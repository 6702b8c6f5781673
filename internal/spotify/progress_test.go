package spotify

import (
	"testing"
	"time"
)

func playing(progress int, ts int64, duration int) PlaybackState {
	return PlaybackState{
		IsPlaying:  true,
		Track:      &Track{ID: "t", Name: "Song", DurationMs: duration},
		ProgressMs: progress,
		Timestamp:  ts,
	}
}

func TestInterpolator_AdvancesAndClamps(t *testing.T) {
	base := time.Unix(1700000000, 0)
	tests := []struct {
		name     string
		progress int
		duration int
		elapsed  time.Duration
		want     int
	}{
		{"at fetch", 1000, 180000, 0, 1000},
		{"advances", 1000, 180000, 2500 * time.Millisecond, 3500},
		{"clamped to duration", 179000, 180000, 5 * time.Second, 180000},
		{"exactly at end", 0, 3000, 3 * time.Second, 3000},
		{"clock behind fetch", 5000, 180000, -time.Second, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ip Interpolator
			ip.Update(playing(tt.progress, 1, tt.duration), base)
			if got := ip.Estimate(base.Add(tt.elapsed)); got != tt.want {
				t.Fatalf("Estimate = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInterpolator_MonotonicWhilePlaying(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var ip Interpolator
	ip.Update(playing(10000, 1, 20000), base)

	prev := -1
	for ms := 0; ms <= 15000; ms += 250 {
		got := ip.Estimate(base.Add(time.Duration(ms) * time.Millisecond))
		if got < prev {
			t.Fatalf("estimate decreased at +%dms: %d < %d", ms, got, prev)
		}
		if got > 20000 {
			t.Fatalf("estimate %d exceeds duration", got)
		}
		prev = got
	}
}

func TestInterpolator_ResetOnNewState(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var ip Interpolator

	if !ip.Update(playing(1000, 100, 180000), base) {
		t.Fatal("first update must reset the baseline")
	}

	// Same authoritative pair polled later: baseline must not move.
	if ip.Update(playing(1000, 100, 180000), base.Add(3*time.Second)) {
		t.Fatal("identical state must not reset the baseline")
	}
	if got := ip.Estimate(base.Add(4 * time.Second)); got != 5000 {
		t.Fatalf("expected 5000 from original baseline, got %d", got)
	}

	// New authoritative progress (e.g. a seek backwards).
	if !ip.Update(playing(500, 200, 180000), base.Add(5*time.Second)) {
		t.Fatal("changed progress must reset the baseline")
	}
	if got := ip.Estimate(base.Add(5 * time.Second)); got != 500 {
		t.Fatalf("expected reset to 500, got %d", got)
	}
	if got := ip.Estimate(base.Add(6 * time.Second)); got != 1500 {
		t.Fatalf("expected 1500 one second after reset, got %d", got)
	}
}

func TestInterpolator_DisabledWhenNotPlaying(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var ip Interpolator

	paused := playing(7000, 1, 180000)
	paused.IsPlaying = false
	ip.Update(paused, base)
	if ip.Playing() {
		t.Fatal("paused state must disable interpolation")
	}
	if got := ip.Estimate(base.Add(10 * time.Second)); got != 7000 {
		t.Fatalf("expected authoritative 7000 while paused, got %d", got)
	}

	ip.Update(PlaybackState{}, base)
	if got := ip.Estimate(base.Add(10 * time.Second)); got != 0 {
		t.Fatalf("expected 0 with nothing playing, got %d", got)
	}
}

func TestInterpolator_ResumeResetsBaseline(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var ip Interpolator

	paused := playing(7000, 1, 180000)
	paused.IsPlaying = false
	ip.Update(paused, base)

	if !ip.Update(playing(7000, 1, 180000), base.Add(30*time.Second)) {
		t.Fatal("resuming playback must reset the baseline")
	}
	if got := ip.Estimate(base.Add(31 * time.Second)); got != 8000 {
		t.Fatalf("expected 8000 one second after resume, got %d", got)
	}
}
