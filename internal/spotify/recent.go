package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	zspotify "github.com/zmb3/spotify"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 50
)

// ClampRecentLimit bounds a requested limit to what the API accepts.
// Zero or negative values select the default.
func ClampRecentLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecentLimit
	case limit > maxRecentLimit:
		return maxRecentLimit
	default:
		return limit
	}
}

// recentlyPlayed is the recently-played page. Items carry full track
// objects, album included.
type recentlyPlayed struct {
	Items []struct {
		Track zspotify.FullTrack `json:"track"`
	} `json:"items"`
}

// RecentlyPlayed returns up to limit recently played tracks, newest first.
// Missing credentials yield an empty list and no error.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	if !c.tokens.Configured() {
		return []Track{}, nil
	}
	log := logrus.WithField("component", "spotify")

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("recently played: %w", err)
	}

	url := c.baseURL + "/me/player/recently-played?limit=" + strconv.Itoa(ClampRecentLimit(limit))
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, url, token)
	})
	if err != nil {
		var se *upstreamStatusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("recently played: circuit open: %w", err)
		case errors.As(err, &se) && se.status == http.StatusUnauthorized:
			c.tokens.Invalidate()
			return nil, fmt.Errorf("recently played: %w: %v", ErrAuthFailure, err)
		case errors.Is(err, ErrUpstreamParse):
			log.WithField("body", rawPrefix(body)).Warn("spotify returned a non-JSON body")
		default:
			log.WithError(err).Warn("failed to get recently played tracks")
		}
		return nil, fmt.Errorf("recently played: %w", err)
	}

	var page recentlyPlayed
	if len(body) > 0 {
		if err := json.Unmarshal(body, &page); err != nil {
			log.WithError(err).WithField("body", rawPrefix(body)).Warn("failed to decode recently played response")
			return nil, fmt.Errorf("recently played: %w: %v", ErrUpstreamParse, err)
		}
	}

	tracks := make([]Track, 0, len(page.Items))
	for _, item := range page.Items {
		tracks = append(tracks, fromFullTrack(item.Track))
	}
	return tracks, nil
}

func fromFullTrack(t zspotify.FullTrack) Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	images := make([]Image, 0, len(t.Album.Images))
	for _, img := range t.Album.Images {
		images = append(images, Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		AlbumName:   t.Album.Name,
		AlbumImages: images,
		ExternalURL: t.ExternalURLs["spotify"],
		DurationMs:  t.Duration,
	}
}
