package presence

// View is the JSON shape served at /api/discord/activity and pushed to
// websocket clients.
type View struct {
	Name          string `json:"name,omitempty"`
	Type          *int   `json:"type,omitempty"`
	TypeText      string `json:"typeText,omitempty"`
	Details       string `json:"details,omitempty"`
	State         string `json:"state,omitempty"`
	ApplicationID string `json:"applicationId,omitempty"`
	StartedAt     int64  `json:"startedAt,omitempty"`
	EndedAt       int64  `json:"endedAt,omitempty"`
	LargeImage    string `json:"largeImage,omitempty"`
	LargeText     string `json:"largeText,omitempty"`
	Status        Status `json:"status"`
	CustomStatus  string `json:"customStatus,omitempty"`
	Synthetic     bool   `json:"synthetic,omitempty"`
}

// NewView converts a snapshot to its wire shape. Timestamps are unix
// milliseconds.
func NewView(s Snapshot) View {
	v := View{
		Status:       s.Status,
		CustomStatus: s.CustomStatusText,
		Synthetic:    s.Synthetic,
	}
	if v.Status == "" {
		v.Status = StatusOffline
	}
	if a := s.Activity; a != nil {
		kind := int(a.Kind)
		v.Name = a.Name
		v.Type = &kind
		v.TypeText = a.Kind.String()
		v.Details = a.Details
		v.State = a.State
		v.ApplicationID = a.ApplicationID
		v.LargeImage = a.LargeImageKey
		v.LargeText = a.LargeImageText
		if !a.StartedAt.IsZero() {
			v.StartedAt = a.StartedAt.UnixMilli()
		}
		if !a.EndedAt.IsZero() {
			v.EndedAt = a.EndedAt.UnixMilli()
		}
	}
	return v
}
