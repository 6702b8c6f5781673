package spotify

// Image is an album artwork rendition.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Track is the normalized track shape served to the page.
type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	AlbumName   string   `json:"album_name"`
	AlbumImages []Image  `json:"album_images"`
	ExternalURL string   `json:"external_url"`
	DurationMs  int      `json:"duration_ms"`
}

// PlaybackState is one authoritative now-playing observation.
// A nil Track with IsPlaying false means nothing is playing.
type PlaybackState struct {
	IsPlaying  bool   `json:"is_playing"`
	Track      *Track `json:"track"`
	ProgressMs int    `json:"progress_ms"`
	Timestamp  int64  `json:"timestamp"`
}

// trackItem is the track object from the Spotify API.
type trackItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationMs   int    `json:"duration_ms"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string  `json:"name"`
		Images []Image `json:"images"`
	} `json:"album"`
}

// currentlyPlaying is the currently playing object from the Spotify API.
// Item is a pointer because it is null for ads, episodes and private sessions.
type currentlyPlaying struct {
	IsPlaying  bool       `json:"is_playing"`
	ProgressMs int        `json:"progress_ms"`
	Timestamp  int64      `json:"timestamp"`
	Item       *trackItem `json:"item"`
}

func (t *trackItem) toTrack() *Track {
	if t == nil {
		return nil
	}
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	images := t.Album.Images
	if images == nil {
		images = []Image{}
	}
	return &Track{
		ID:          t.ID,
		Name:        t.Name,
		Artists:     artists,
		AlbumName:   t.Album.Name,
		AlbumImages: images,
		ExternalURL: t.ExternalURLs.Spotify,
		DurationMs:  t.DurationMs,
	}
}
