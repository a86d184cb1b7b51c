package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Default timeouts used when Config leaves them unset.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultAckTimeout       = 30 * time.Second
)

// closeGrace bounds how long Close waits to write the close frame.
const closeGrace = time.Second

// Config holds worker connection settings.
type Config struct {
	// Endpoint is the websocket URL of the worker, e.g. ws://localhost:8000.
	Endpoint string
	// HandshakeTimeout bounds dialing and the websocket upgrade.
	HandshakeTimeout time.Duration
	// IdleTimeout ends a session that receives no frame for this long. Zero disables it.
	IdleTimeout time.Duration
	// AckTimeout bounds the wait for the single reply of Acknowledge.
	AckTimeout time.Duration
}

// Link opens sessions against a single worker endpoint.
// Connections are never pooled: each Open or Acknowledge dials a fresh one.
type Link struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewLink creates a Link. A nil logger uses slog.Default().
func NewLink(cfg Config, logger *slog.Logger) *Link {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		logger: logger,
	}
}

// Endpoint returns the worker URL.
func (l *Link) Endpoint() string {
	return l.cfg.Endpoint
}

func (l *Link) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := l.dialer.DialContext(ctx, l.cfg.Endpoint, nil)
	if err != nil {
		return nil, newError(ErrConnection, "dial %s: %v", l.cfg.Endpoint, err)
	}
	return conn, nil
}

// Open dials the worker, sends cmd once the handshake has completed and
// returns the session delivering the worker's replies.
//
// The session ends on the first Done or Error event, when ctx is cancelled,
// or when Close is called.
func (l *Link) Open(ctx context.Context, cmd Command) (*Session, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.New().String()[:8],
		key:    cmd.Key,
		conn:   conn,
		idle:   l.cfg.IdleTimeout,
		events: make(chan Event),
		done:   make(chan struct{}),
		logger: l.logger,
	}

	if err := conn.WriteJSON(cmd); err != nil {
		_ = conn.Close()
		return nil, newError(ErrConnection, "send %s command: %v", cmd.Key, err)
	}

	l.logger.Debug("worker session opened", "session_id", s.id, "key", cmd.Key)

	go s.watch(ctx)
	go s.readLoop()
	return s, nil
}

// Acknowledge sends cmd and waits for a single reply of any content.
// It is used for commands whose outcome is not tracked as a job.
func (l *Link) Acknowledge(ctx context.Context, cmd Command) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(cmd); err != nil {
		return newError(ErrConnection, "send %s command: %v", cmd.Key, err)
	}

	deadline := time.Now().Add(l.cfg.AckTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return newError(ErrConnection, "set read deadline: %v", err)
	}

	// Unblock the read if ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, _, err := conn.ReadMessage(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("await %s acknowledgement: %w", cmd.Key, ctx.Err())
		}
		if isTimeout(err) {
			return newError(ErrTimeout, "no %s acknowledgement within %s", cmd.Key, l.cfg.AckTimeout)
		}
		return newError(ErrConnection, "await %s acknowledgement: %v", cmd.Key, err)
	}

	closeGracefully(conn)
	return nil
}

// Session is one command/reply stream with the worker.
type Session struct {
	id     string
	key    Key
	conn   *websocket.Conn
	idle   time.Duration
	events chan Event
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	cancelled atomic.Bool
}

// ID returns a short identifier for logging.
func (s *Session) ID() string {
	return s.id
}

// Events returns the channel of decoded worker events.
// The channel is closed after the terminal event, or immediately after Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		closeGracefully(s.conn)
		err = s.conn.Close()
		s.logger.Debug("worker session closed", "session_id", s.id, "key", s.key)
	})
	return err
}

// watch tears the connection down when ctx ends so the read loop can report it.
func (s *Session) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.cancelled.Store(true)
		_ = s.conn.Close()
	case <-s.done:
	}
}

func (s *Session) readLoop() {
	defer close(s.events)
	defer s.Close()

	for {
		if s.idle > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed() {
				return
			}
			s.emit(ErrorEvent(s.readError(err)))
			return
		}

		ev, err := DecodeFrame(data)
		if err != nil {
			s.logger.Warn("dropping worker session after bad frame", "session_id", s.id, "error", err)
			s.emit(ErrorEvent(err))
			return
		}

		if !s.emit(ev) || ev.Terminal() {
			return
		}
	}
}

// emit hands ev to the consumer, giving up if the session was closed.
func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) readError(err error) error {
	switch {
	case s.cancelled.Load():
		return newError(ErrConnection, "session cancelled")
	case isTimeout(err):
		return newError(ErrTimeout, "worker timed out after %s", s.idle)
	default:
		s.logger.Debug("worker stream ended", "session_id", s.id, "error", err)
		return newError(ErrConnection, "connection closed unexpectedly")
	}
}

func closeGracefully(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
