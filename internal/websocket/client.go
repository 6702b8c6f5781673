package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"skidoodle/biolink/internal/metrics"
)

const (
	writeWait       = 10 * time.Second
	idleTimeout     = 60 * time.Second
	pingEvery       = (idleTimeout * 9) / 10
	maxInboundBytes = 512
	outboxSize      = 32
)

// subscriber is one browser connection. The hub owns the outbox: only the
// hub closes it, and a closed outbox tells flushOutbound to say goodbye.
// Inbound frames are never interpreted; reading only keeps pong handling
// and close detection alive.
type subscriber struct {
	hub    *Hub
	conn   *websocket.Conn
	outbox chan []byte
	log    *logrus.Entry

	detachOnce sync.Once
}

func newSubscriber(hub *Hub, conn *websocket.Conn) *subscriber {
	return &subscriber{
		hub:    hub,
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		log:    logrus.WithField("remoteAddr", conn.RemoteAddr().String()),
	}
}

// offer queues a payload without blocking. It reports false when the
// subscriber is too slow to keep up.
func (s *subscriber) offer(payload []byte) bool {
	select {
	case s.outbox <- payload:
		return true
	default:
		metrics.HubDropped.WithLabelValues("slow_subscriber").Inc()
		return false
	}
}

// detach leaves the hub and closes the socket. Safe to call from both loops.
func (s *subscriber) detach() {
	s.detachOnce.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-time.After(writeWait):
			s.log.Debug("hub gone, skipping unregister")
		}
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Trace("socket already closed")
		}
	})
}

func (s *subscriber) discardInbound() {
	defer s.detach()

	s.conn.SetReadLimit(maxInboundBytes)
	extend := func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	if err := extend(""); err != nil {
		return
	}
	s.conn.SetPongHandler(extend)

	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("subscriber went away")
			}
			return
		}
	}
}

func (s *subscriber) flushOutbound() {
	keepalive := time.NewTicker(pingEvery)
	defer func() {
		keepalive.Stop()
		s.detach()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case payload, open := <-s.outbox:
			if !open {
				deadline := time.Now().Add(writeWait)
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
				return
			}
			kind, data = websocket.TextMessage, payload
		case <-keepalive.C:
			kind = websocket.PingMessage
		}

		if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := s.conn.WriteMessage(kind, data); err != nil {
			metrics.HubDropped.WithLabelValues("write_error").Inc()
			s.log.WithError(err).Debug("subscriber write failed")
			return
		}
	}
}
