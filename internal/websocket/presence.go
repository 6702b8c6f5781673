package websocket

import (
	"context"

	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/presence"
)

// PresenceRelay forwards published presence snapshots to the hub.
type PresenceRelay struct {
	store *presence.Store
	hub   *Hub
}

// NewPresenceRelay creates a relay from store to hub.
func NewPresenceRelay(store *presence.Store, hub *Hub) *PresenceRelay {
	return &PresenceRelay{store: store, hub: hub}
}

// Run relays snapshots until ctx is canceled.
func (r *PresenceRelay) Run(ctx context.Context) error {
	updates, unsubscribe := r.store.Subscribe(8)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			r.hub.Broadcast(Message{Type: TypePresence, Data: presence.NewView(snap)})
		}
	}
}

// LastState returns the current presence as an initial websocket message.
func (r *PresenceRelay) LastState(ctx context.Context) (Message, bool) {
	snap, ok, err := r.store.Read(ctx)
	if err != nil {
		logrus.WithError(err).Debug("presence store unavailable for initial state")
		return Message{}, false
	}
	if !ok {
		return Message{}, false
	}
	return Message{Type: TypePresence, Data: presence.NewView(snap)}, true
}

// Serve implements suture.Service.
func (r *PresenceRelay) Serve(ctx context.Context) error {
	return r.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (r *PresenceRelay) String() string {
	return "presence-relay"
}
