// Package presence holds the tracked user's current Discord presence.
package presence

import "time"

// Status is the user's online status as reported by the gateway.
type Status string

// Presence statuses.
const (
	StatusOnline       Status = "online"
	StatusIdle         Status = "idle"
	StatusDoNotDisturb Status = "dnd"
	StatusOffline      Status = "offline"
)

// ParseStatus maps a raw gateway status to a Status. Unknown values,
// including "invisible", are reported as offline.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusOnline, StatusIdle, StatusDoNotDisturb:
		return Status(s)
	default:
		return StatusOffline
	}
}

// ActivityKind uses the gateway's integer activity types.
type ActivityKind int

// Activity kinds.
const (
	KindGame      ActivityKind = 0
	KindStreaming ActivityKind = 1
	KindListening ActivityKind = 2
	KindWatching  ActivityKind = 3
	KindCustom    ActivityKind = 4
	KindCompeting ActivityKind = 5
)

// String returns the human label shown next to the activity name.
func (k ActivityKind) String() string {
	switch k {
	case KindGame:
		return "Playing"
	case KindStreaming:
		return "Streaming"
	case KindListening:
		return "Listening to"
	case KindWatching:
		return "Watching"
	case KindCustom:
		return "Custom Status"
	case KindCompeting:
		return "Competing in"
	default:
		return "Unknown"
	}
}

// Activity is the single activity selected from a presence update.
type Activity struct {
	Name           string
	Kind           ActivityKind
	Details        string
	State          string
	ApplicationID  string
	StartedAt      time.Time
	EndedAt        time.Time
	LargeImageKey  string
	LargeImageText string
}

// Snapshot is the externally visible presence of the tracked user.
// Status is always set; Activity may be nil.
type Snapshot struct {
	Status           Status
	Activity         *Activity
	CustomStatusText string
	// Synthetic marks demo data produced without a live gateway.
	Synthetic bool
	UpdatedAt time.Time
}
