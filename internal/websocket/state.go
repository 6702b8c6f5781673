package websocket

// Message types pushed to clients.
const (
	TypeSpotify  = "spotify"
	TypePresence = "presence"
	TypeProgress = "progress"
)

// Message is the client-facing envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// progressData is sent between polls in realtime mode.
type progressData struct {
	ProgressMs int    `json:"progress_ms"`
	TrackID    string `json:"track_id"`
}
