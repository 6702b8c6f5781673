package websocket

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/metrics"
)

// Hub manages the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*subscriber]struct{}
	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*subscriber]struct{}),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan []byte, 16),
	}
}

// Run starts the hub's event loop. It must be run in a separate goroutine.
func (h *Hub) Run(ctx context.Context) error {
	log := logrus.WithField("component", "hub")
	log.Info("hub started")
	defer log.Info("hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllConnections()
			return ctx.Err()
		case s := <-h.register:
			h.clients[s] = struct{}{}
			metrics.HubClients.Set(float64(len(h.clients)))
			s.log.Debug("subscriber joined")
		case s := <-h.unregister:
			h.evict(s)
			s.log.Debug("subscriber left")
		case payload := <-h.broadcast:
			for s := range h.clients {
				if !s.offer(payload) {
					h.evict(s)
				}
			}
		}
	}
}

// Broadcast sends a message to all connected clients. Messages are
// dropped when the hub is saturated.
func (h *Hub) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).WithField("type", msg.Type).Error("failed to encode broadcast message")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logrus.WithField("type", msg.Type).Warn("hub busy, dropping broadcast")
	}
}

func (h *Hub) evict(s *subscriber) {
	if _, ok := h.clients[s]; !ok {
		return
	}
	delete(h.clients, s)
	close(s.outbox)
	metrics.HubClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllConnections() {
	for s := range h.clients {
		h.evict(s)
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}
