package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// InitialState returns the message a newly connected client should
// receive first, if any.
type InitialState func(ctx context.Context) (Message, bool)

// Handler upgrades HTTP requests and attaches the connection to the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	initial  []InitialState
}

// NewHandler creates a websocket handler. An empty allowedOrigins list
// accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string, initial ...InitialState) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     OriginChecker(allowedOrigins),
		},
		initial: initial,
	}
}

// OriginChecker returns a CheckOrigin function for the allowed origins.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowedOrigins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if allowed == origin {
				return true
			}
		}
		logrus.WithField("origin", origin).Warn("origin not allowed, rejecting connection")
		return false
	}
}

// IsUpgrade reports whether r asks for a websocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		logrus.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sub := newSubscriber(h.hub, conn)

	// Send the last known state immediately upon connection.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	for _, fn := range h.initial {
		msg, ok := fn(ctx)
		if !ok {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			logrus.WithError(err).Warn("failed to encode initial state")
			continue
		}
		sub.offer(payload)
	}
	cancel()

	select {
	case h.hub.register <- sub:
	case <-time.After(writeWait):
		logrus.Warn("hub not accepting clients, closing connection")
		_ = conn.Close()
		return
	}

	go sub.flushOutbound()
	go sub.discardInbound()
}
