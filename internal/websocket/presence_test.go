package websocket

import (
	"context"
	"testing"
	"time"

	"skidoodle/biolink/internal/presence"
)

func TestPresenceRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := presence.NewStore()
	go func() { _ = store.Run(ctx) }()

	hub := NewHub()
	relay := NewPresenceRelay(store, hub)

	if _, ok := relay.LastState(ctx); ok {
		t.Error("expected no initial state before first publish")
	}

	go func() { _ = relay.Run(ctx) }()

	snap := presence.Snapshot{
		Status:   presence.StatusIdle,
		Activity: &presence.Activity{Name: "Minecraft", Kind: presence.KindGame},
	}

	// The relay subscribes asynchronously, so republish until it forwards.
	deadline := time.Now().Add(2 * time.Second)
	var got []Message
	for len(got) == 0 && time.Now().Before(deadline) {
		if err := store.Publish(ctx, snap); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
		got = drain(hub)
	}
	if len(got) == 0 {
		t.Fatal("relay never broadcast the snapshot")
	}
	if got[0].Type != TypePresence {
		t.Errorf("expected presence message, got %q", got[0].Type)
	}
	data, _ := got[0].Data.(map[string]any)
	if data["name"] != "Minecraft" || data["status"] != "idle" {
		t.Errorf("unexpected data %v", got[0].Data)
	}

	msg, ok := relay.LastState(ctx)
	if !ok {
		t.Fatal("expected initial state after publish")
	}
	view, _ := msg.Data.(presence.View)
	if view.Name != "Minecraft" {
		t.Errorf("unexpected initial view %+v", view)
	}
}
