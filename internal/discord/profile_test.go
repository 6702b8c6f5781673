package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestAvatarURL(t *testing.T) {
	const cdn = "https://cdn.example"
	tests := []struct {
		name          string
		id            string
		discriminator string
		hash          string
		want          string
	}{
		{"static", "80351110224678912", "0", "abc", "https://cdn.example/avatars/80351110224678912/abc.png?size=512"},
		{"animated", "80351110224678912", "0", "a_abc", "https://cdn.example/avatars/80351110224678912/a_abc.gif?size=512"},
		{"default migrated", "80351110224678912", "0", "", "https://cdn.example/embed/avatars/5.png"},
		{"default legacy", "80351110224678912", "1337", "", "https://cdn.example/embed/avatars/2.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AvatarURL(cdn, tt.id, tt.discriminator, tt.hash); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBannerURL(t *testing.T) {
	if got := BannerURL("https://cdn.example", "1", ""); got != "" {
		t.Errorf("expected empty banner, got %q", got)
	}
	if got := BannerURL("https://cdn.example", "1", "a_b"); got != "https://cdn.example/banners/1/a_b.gif?size=512" {
		t.Errorf("unexpected banner url %q", got)
	}
}

func TestProfileClientFetchesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/users/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","username":"tester","global_name":"Tester","discriminator":"0",
			"avatar":"a_hash","banner":null,"accent_color":16711680,"premium_type":2,"public_flags":4194312}`))
	}))
	defer srv.Close()

	now := time.Unix(1700000000, 0)
	c := NewProfileClient("secret", "42",
		WithProfileAPIURL(srv.URL),
		WithProfileTTL(time.Minute),
		WithProfileClock(func() time.Time { return now }),
	)

	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Username != "tester" || p.GlobalName != "Tester" {
		t.Errorf("unexpected names %+v", p)
	}
	if p.Avatar != DefaultCDNBaseURL+"/avatars/42/a_hash.gif?size=512" {
		t.Errorf("unexpected avatar %q", p.Avatar)
	}
	if p.Banner != "" {
		t.Errorf("expected no banner, got %q", p.Banner)
	}
	if p.AccentColor == nil || *p.AccentColor != 16711680 {
		t.Errorf("unexpected accent color %v", p.AccentColor)
	}
	want := []string{"bug_hunter_level_1", "active_developer", "nitro"}
	if !reflect.DeepEqual(p.Badges, want) {
		t.Errorf("expected badges %v, got %v", want, p.Badges)
	}

	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected cached profile, got %d requests", hits.Load())
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected refresh after ttl, got %d requests", hits.Load())
	}
}

func TestProfileClientServesStaleOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"42","username":"tester","discriminator":"0"}`))
	}))
	defer srv.Close()

	now := time.Unix(1700000000, 0)
	c := NewProfileClient("secret", "42",
		WithProfileAPIURL(srv.URL),
		WithProfileTTL(time.Minute),
		WithProfileClock(func() time.Time { return now }),
	)
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fail.Store(true)
	now = now.Add(time.Hour)
	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("expected stale profile, got %v", err)
	}
	if p.Username != "tester" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestProfileClientErrors(t *testing.T) {
	if _, err := NewProfileClient("", "42").Profile(context.Background()); !errors.Is(err, ErrProfileNotConfigured) {
		t.Errorf("expected ErrProfileNotConfigured, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewProfileClient("bad", "42", WithProfileAPIURL(srv.URL)).Profile(context.Background())
	if !errors.Is(err, ErrProfileUpstream) {
		t.Errorf("expected ErrProfileUpstream, got %v", err)
	}
}
