package discord

import (
	"testing"

	"skidoodle/biolink/internal/presence"
)

func TestSelectActivity(t *testing.T) {
	game := presence.Activity{Name: "Minecraft", Kind: presence.KindGame}
	game2 := presence.Activity{Name: "Factorio", Kind: presence.KindGame}
	listening := presence.Activity{Name: "Spotify", Kind: presence.KindListening}
	watching := presence.Activity{Name: "YouTube", Kind: presence.KindWatching}
	streaming := presence.Activity{Name: "Twitch", Kind: presence.KindStreaming}
	custom := presence.Activity{Name: "Custom Status", Kind: presence.KindCustom, State: "busy"}

	tests := []struct {
		name       string
		activities []presence.Activity
		want       string
		wantCustom string
	}{
		{"empty", nil, "", ""},
		{"listening beats game", []presence.Activity{game, listening, custom}, "Spotify", "busy"},
		{"listening beats game regardless of order", []presence.Activity{listening, game}, "Spotify", ""},
		{"first game wins", []presence.Activity{watching, game, game2}, "Minecraft", ""},
		{"first non-custom when no game or listening", []presence.Activity{custom, streaming, watching}, "Twitch", "busy"},
		{"only custom", []presence.Activity{custom}, "", "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, custom := SelectActivity(tt.activities)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected no activity, got %q", got.Name)
				}
			} else if got == nil || got.Name != tt.want {
				t.Errorf("expected %q, got %+v", tt.want, got)
			}
			if custom != tt.wantCustom {
				t.Errorf("expected custom status %q, got %q", tt.wantCustom, custom)
			}
		})
	}
}

func TestSelectActivityReturnsCopy(t *testing.T) {
	activities := []presence.Activity{{Name: "Minecraft", Kind: presence.KindGame}}
	got, _ := SelectActivity(activities)
	got.Name = "changed"
	if activities[0].Name != "Minecraft" {
		t.Error("selected activity aliases the input slice")
	}
}
