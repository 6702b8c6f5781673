// Package discord tracks one user's presence through the Discord gateway,
// with a polling fallback and a REST profile lookup.
//
// The [Session] type runs the gateway state machine:
//
//	Disconnected -> Connecting -> AwaitingHello -> Identifying -> Ready
//	      ^                                                         |
//	      +------------------------ Reconnecting <------------------+
//
// Reconnecting returns to Connecting after a fixed delay until the attempt
// budget is spent, at which point Run returns ErrReconnectBudgetExhausted.
package discord

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"skidoodle/biolink/internal/metrics"
	"skidoodle/biolink/internal/presence"
)

// DefaultGatewayURL is the public gateway endpoint, API v10 with JSON encoding.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

const (
	defaultMaxAttempts    = 5
	defaultReconnectDelay = 5 * time.Second
	publishTimeout        = 5 * time.Second

	// The gateway allows 120 outbound events per connection per minute.
	sendRateLimit = 120
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrTransport wraps dial, read and write failures.
	ErrTransport = errors.New("gateway transport error")
	// ErrProtocol is returned when the gateway breaks the handshake.
	ErrProtocol = errors.New("gateway protocol violation")
	// ErrReconnectRequested is returned when the gateway sends op 7.
	ErrReconnectRequested = errors.New("gateway requested reconnect")
	// ErrSessionInvalidated is returned when the gateway sends op 9.
	ErrSessionInvalidated = errors.New("gateway session invalidated")
	// ErrHeartbeatTimeout is returned after too many unacknowledged heartbeats.
	ErrHeartbeatTimeout = errors.New("gateway heartbeat not acknowledged")
	// ErrReconnectBudgetExhausted is returned by Run once MaxAttempts
	// consecutive connections have failed.
	ErrReconnectBudgetExhausted = errors.New("gateway reconnect budget exhausted")
)

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// SessionState is the gateway session's lifecycle state.
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateReady
	StateReconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ///////////////////////////////////////////////
// Transport
// ///////////////////////////////////////////////

// Conn is the subset of *websocket.Conn used by the session.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens gateway connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Publisher receives presence snapshots for the tracked user.
type Publisher interface {
	Publish(ctx context.Context, snap presence.Snapshot) error
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// SessionConfig configures a gateway Session.
type SessionConfig struct {
	URL    string
	Token  string
	UserID string
	// Intents defaults to 0: no privileged intents are requested.
	Intents        int
	MaxAttempts    int
	ReconnectDelay time.Duration
	// MissedACKLimit reconnects after this many unacknowledged heartbeats.
	// Zero disables the check.
	MissedACKLimit int
}

// Session maintains one gateway connection and publishes the tracked
// user's presence.
type Session struct {
	cfg       SessionConfig
	dialer    Dialer
	publisher Publisher
	now       func() time.Time
	log       *logrus.Entry

	state atomic.Int32

	mu        sync.Mutex
	sessionID string
	resumeURL string
	seq       int64
	hasSeq    bool

	// attempts is only touched by the Run goroutine.
	attempts int
}

// NewSession creates a session. A nil dialer uses WebsocketDialer.
func NewSession(cfg SessionConfig, dialer Dialer, publisher Publisher) *Session {
	if cfg.URL == "" {
		cfg.URL = DefaultGatewayURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Session{
		cfg:       cfg,
		dialer:    dialer,
		publisher: publisher,
		now:       time.Now,
		log:       logrus.WithField("component", "gateway"),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// SessionID returns the id captured from the last READY event.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ResumeURL returns the resume gateway URL from the last READY event.
// Resuming is not performed; a new session is identified on reconnect.
func (s *Session) ResumeURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeURL
}

// Sequence returns the last dispatch sequence number seen.
func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Session) setState(st SessionState) {
	if prev := SessionState(s.state.Swap(int32(st))); prev != st {
		s.log.WithFields(logrus.Fields{"from": prev.String(), "to": st.String()}).Debug("gateway state changed")
	}
	metrics.GatewayState.Set(float64(st))
}

// Run connects and keeps the session alive until ctx is canceled or the
// reconnect budget is exhausted. Cancellation returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("gateway session started")
	defer s.setState(StateDisconnected)
	s.attempts = 0

	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			s.log.Info("gateway session stopped")
			return nil
		}

		s.attempts++
		metrics.GatewayReconnects.Inc()
		if s.attempts >= s.cfg.MaxAttempts {
			s.log.WithError(err).WithField("attempts", s.attempts).Error("giving up on gateway")
			return fmt.Errorf("%w after %d attempts: %v", ErrReconnectBudgetExhausted, s.attempts, err)
		}

		s.setState(StateReconnecting)
		s.log.WithError(err).WithFields(logrus.Fields{
			"attempt": s.attempts,
			"delay":   s.cfg.ReconnectDelay,
		}).Warn("gateway connection lost, reconnecting")

		timer := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("gateway session stopped")
			return nil
		case <-timer.C:
		}
	}
}

// connState is the per-connection state. It lives only inside connect.
type connState struct {
	conn      Conn
	limiter   *rate.Limiter
	heartbeat *time.Ticker
	awaitACK  bool
	missed    int
}

func (cs *connState) heartbeatC() <-chan time.Time {
	if cs.heartbeat == nil {
		return nil
	}
	return cs.heartbeat.C
}

// connect runs one connection until it ends and returns why.
func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)

	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}

	s.mu.Lock()
	s.seq, s.hasSeq = 0, false
	s.mu.Unlock()

	cs := &connState{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Every(time.Minute/sendRateLimit), sendRateLimit),
	}
	s.setState(StateAwaitingHello)

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-stop:
				return
			}
		}
	}()

	defer func() {
		if cs.heartbeat != nil {
			cs.heartbeat.Stop()
		}
		close(stop)
		if err := conn.Close(); err != nil {
			s.log.WithError(err).Debug("error closing gateway connection")
		}
		<-readerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("%w: read: %v", ErrTransport, err)
		case data := <-frames:
			if err := s.handleFrame(ctx, cs, data); err != nil {
				return err
			}
		case <-cs.heartbeatC():
			if cs.awaitACK {
				cs.missed++
				metrics.GatewayHeartbeats.WithLabelValues("missed").Inc()
				s.log.WithField("missed", cs.missed).Warn("heartbeat not acknowledged")
				if s.cfg.MissedACKLimit > 0 && cs.missed >= s.cfg.MissedACKLimit {
					return ErrHeartbeatTimeout
				}
			}
			if err := s.sendHeartbeat(ctx, cs); err != nil {
				return err
			}
		}
	}
}

// handleFrame processes one inbound frame. Malformed frames and unknown
// opcodes are dropped; a returned error ends the connection.
func (s *Session) handleFrame(ctx context.Context, cs *connState, data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		metrics.GatewayFramesDropped.WithLabelValues("malformed").Inc()
		s.log.WithError(err).WithField("frame", truncate(data, 120)).Warn("dropping malformed gateway frame")
		return nil
	}
	if f.S != nil {
		s.mu.Lock()
		s.seq, s.hasSeq = *f.S, true
		s.mu.Unlock()
	}

	switch f.Op {
	case OpHello:
		var hello helloData
		if err := json.Unmarshal(f.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
			return fmt.Errorf("%w: hello without heartbeat interval", ErrProtocol)
		}
		if cs.heartbeat != nil {
			cs.heartbeat.Stop()
		}
		interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
		cs.heartbeat = time.NewTicker(interval)
		s.log.WithField("interval", interval).Debug("hello received")
		s.setState(StateIdentifying)
		return s.identify(ctx, cs)

	case OpHeartbeatACK:
		cs.awaitACK = false
		cs.missed = 0
		metrics.GatewayHeartbeats.WithLabelValues("ack").Inc()
		return nil

	case OpHeartbeat:
		return s.sendHeartbeat(ctx, cs)

	case OpReconnect:
		return ErrReconnectRequested

	case OpInvalidSession:
		return ErrSessionInvalidated

	case OpDispatch:
		s.handleDispatch(ctx, f)
		return nil

	default:
		metrics.GatewayFramesDropped.WithLabelValues("unknown_opcode").Inc()
		s.log.WithField("op", int(f.Op)).Debug("ignoring unknown gateway opcode")
		return nil
	}
}

func (s *Session) handleDispatch(ctx context.Context, f frame) {
	switch f.T {
	case EventReady:
		var ready readyData
		if err := json.Unmarshal(f.D, &ready); err != nil {
			metrics.GatewayFramesDropped.WithLabelValues("malformed").Inc()
			s.log.WithError(err).Warn("dropping malformed READY")
			return
		}
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeGatewayURL
		s.mu.Unlock()
		s.attempts = 0
		s.setState(StateReady)
		s.log.WithField("sessionID", ready.SessionID).Info("gateway session ready")

	case EventPresenceUpdate:
		var p presenceUpdateData
		if err := json.Unmarshal(f.D, &p); err != nil {
			metrics.GatewayFramesDropped.WithLabelValues("malformed").Inc()
			s.log.WithError(err).Warn("dropping malformed PRESENCE_UPDATE")
			return
		}
		if p.User.ID == s.cfg.UserID {
			s.publish(ctx, p)
		}

	case EventGuildCreate:
		var g guildCreateData
		if err := json.Unmarshal(f.D, &g); err != nil {
			metrics.GatewayFramesDropped.WithLabelValues("malformed").Inc()
			s.log.WithError(err).Warn("dropping malformed GUILD_CREATE")
			return
		}
		for _, p := range g.Presences {
			if p.User.ID == s.cfg.UserID {
				s.publish(ctx, p)
				return
			}
		}
	}
}

func (s *Session) publish(ctx context.Context, p presenceUpdateData) {
	snap := snapshotFromPresence(p, s.now())
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pctx, snap); err != nil {
		s.log.WithError(err).Warn("failed to publish presence")
		return
	}
	metrics.PresenceUpdates.WithLabelValues("gateway").Inc()
	fields := logrus.Fields{"status": snap.Status}
	if snap.Activity != nil {
		fields["activity"] = snap.Activity.Name
	}
	s.log.WithFields(fields).Debug("presence updated")
}

func (s *Session) identify(ctx context.Context, cs *connState) error {
	return s.send(ctx, cs, OpIdentify, identifyData{
		Token:   s.cfg.Token,
		Intents: s.cfg.Intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "biolink",
			Device:  "biolink",
		},
	})
}

func (s *Session) sendHeartbeat(ctx context.Context, cs *connState) error {
	s.mu.Lock()
	var d any
	if s.hasSeq {
		d = s.seq
	}
	s.mu.Unlock()

	if err := s.send(ctx, cs, OpHeartbeat, d); err != nil {
		return err
	}
	cs.awaitACK = true
	metrics.GatewayHeartbeats.WithLabelValues("sent").Inc()
	return nil
}

func (s *Session) send(ctx context.Context, cs *connState, op Opcode, d any) error {
	if err := cs.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(outboundFrame{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("marshaling op %d: %w", op, err)
	}
	if err := cs.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: write op %d: %v", ErrTransport, op, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// String implements fmt.Stringer for supervisor logs.
func (s *Session) String() string {
	return "discord-gateway"
}
