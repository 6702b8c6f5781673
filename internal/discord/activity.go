package discord

import (
	"time"

	"skidoodle/biolink/internal/presence"
)

// SelectActivity picks the one activity to display: listening beats
// playing, otherwise the first reported non-custom activity wins. The
// custom status text is returned separately in every case.
func SelectActivity(activities []presence.Activity) (selected *presence.Activity, customStatus string) {
	var listening, game, first *presence.Activity
	for i := range activities {
		a := &activities[i]
		switch a.Kind {
		case presence.KindCustom:
			if customStatus == "" {
				customStatus = a.State
			}
			continue
		case presence.KindListening:
			if listening == nil {
				listening = a
			}
		case presence.KindGame:
			if game == nil {
				game = a
			}
		}
		if first == nil {
			first = a
		}
	}

	switch {
	case listening != nil:
		selected = listening
	case game != nil:
		selected = game
	default:
		selected = first
	}
	if selected != nil {
		cp := *selected
		selected = &cp
	}
	return selected, customStatus
}

// snapshotFromPresence converts a gateway presence into a Snapshot.
func snapshotFromPresence(p presenceUpdateData, now time.Time) presence.Snapshot {
	activities := make([]presence.Activity, 0, len(p.Activities))
	for _, ga := range p.Activities {
		activities = append(activities, ga.toActivity())
	}
	selected, custom := SelectActivity(activities)
	return presence.Snapshot{
		Status:           presence.ParseStatus(p.Status),
		Activity:         selected,
		CustomStatusText: custom,
		UpdatedAt:        now,
	}
}

func (ga gatewayActivity) toActivity() presence.Activity {
	a := presence.Activity{
		Name:          ga.Name,
		Kind:          presence.ActivityKind(ga.Type),
		Details:       ga.Details,
		State:         ga.State,
		ApplicationID: ga.ApplicationID,
	}
	if ts := ga.Timestamps; ts != nil {
		if ts.Start > 0 {
			a.StartedAt = time.UnixMilli(ts.Start)
		}
		if ts.End > 0 {
			a.EndedAt = time.UnixMilli(ts.End)
		}
	}
	if as := ga.Assets; as != nil {
		a.LargeImageKey = as.LargeImage
		a.LargeImageText = as.LargeText
	}
	return a
}
