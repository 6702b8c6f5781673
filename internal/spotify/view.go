package spotify

// View is the JSON shape served at /api/spotify/current and pushed to
// websocket clients. Status is always present so an outage never looks
// like "nothing playing".
type View struct {
	Status     string `json:"status"`
	IsPlaying  bool   `json:"is_playing"`
	Track      *Track `json:"track"`
	ProgressMs *int   `json:"progress_ms,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	Error      string `json:"error,omitempty"`
}

// NewView converts a Result. Progress and timestamp are included only
// when withProgress is set.
func NewView(r Result, withProgress bool) View {
	v := View{Status: r.Kind.String()}
	switch r.Kind {
	case KindPlaying:
		st := r.Playback()
		v.IsPlaying = st.IsPlaying
		v.Track = st.Track
		if withProgress {
			p := st.ProgressMs
			v.ProgressMs = &p
			v.Timestamp = st.Timestamp
		}
	case KindUnavailable:
		v.Error = r.Reason
	}
	return v
}
