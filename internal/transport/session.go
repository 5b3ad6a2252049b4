package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/goliatone/go-notifications-client/internal/redact"
	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/credentials"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/retry"
)

// ErrInvalidIdentity is returned by Connect when organization or user is missing.
var ErrInvalidIdentity = errors.New("transport: identity requires organization and user")

const defaultHandshakeTimeout = 10 * time.Second

// Sink receives the effects of inbound frames and connection changes.
type Sink interface {
	ApplyPush(n domain.Notification)
	ApplyReadAck(count int)
	SetConnection(state domain.ConnectionState)
}

// Options configure a Session.
type Options struct {
	Endpoint         string
	Topics           []string
	Credentials      credentials.Provider
	Dialer           Dialer
	Scheduler        Scheduler
	Policy           retry.Policy
	HandshakeTimeout time.Duration
	Sink             Sink
	Logger           logger.Logger
}

// Session owns at most one live socket for the active identity and
// reconnects it with backoff.
//
// Every Connect or Stop starts a new generation. Reader goroutines and
// reconnect timers remember the generation they were started for; their
// frames and callbacks are discarded once it is no longer current.
//
// Sink calls happen with the session lock held. Sink implementations must
// not call back into the Session synchronously.
type Session struct {
	opts   Options
	logger logger.Logger

	mu        sync.Mutex
	gen       uint64
	active    bool
	identity  domain.Identity
	state     domain.ConnectionState
	conn      Conn
	cancel    context.CancelFunc
	timer     Timer
	attempt   int
	handshake bool
}

// NewSession validates opts and returns an idle session.
func NewSession(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("transport: endpoint is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("transport: sink is required")
	}
	if opts.Credentials == nil {
		opts.Credentials = credentials.None{}
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = ClockScheduler()
	}
	if opts.Policy.Backoff == nil {
		opts.Policy = retry.ReconnectPolicy()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Session{
		opts:   opts,
		logger: logger.OrNop(opts.Logger).With(logger.F("component", "transport")),
		state:  domain.ConnectionDisconnected,
	}, nil
}

// Connect tears down any existing connection and opens a new one for id.
// A missing credential is not an error: the socket simply stays closed. A
// canceled ctx returns its error without touching the current connection.
// Dial failures are retried in the background following the reconnect
// policy.
func (s *Session) Connect(ctx context.Context, id domain.Identity) error {
	if !id.Valid() {
		return ErrInvalidIdentity
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	// Checked under the lock so a caller that cancels ctx and then calls
	// Stop never sees this Connect reactivate the session.
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	release := s.teardownLocked()
	s.gen++
	gen := s.gen
	s.active = true
	s.identity = id
	s.attempt = 0
	s.mu.Unlock()
	release()

	s.open(ctx, gen)
	return nil
}

// Stop closes the connection and cancels any pending reconnect.
func (s *Session) Stop() {
	s.mu.Lock()
	release := s.teardownLocked()
	s.gen++
	s.active = false
	s.identity = domain.Identity{}
	s.attempt = 0
	s.setStateLocked(domain.ConnectionDisconnected)
	s.mu.Unlock()
	release()
}

// State returns the current connection state.
func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the identity the session is connected for.
func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) open(ctx context.Context, gen uint64) {
	if ctx == nil {
		ctx = context.Background()
	}
	token, err := s.opts.Credentials.Token(ctx)
	if err != nil || strings.TrimSpace(token) == "" {
		fields := []logger.Field{}
		if err != nil {
			fields = append(fields, logger.Err(err))
		}
		s.logger.Warn("no credential available, realtime connection not opened", fields...)
		s.mu.Lock()
		if s.gen == gen {
			s.setStateLocked(domain.ConnectionDisconnected)
		}
		s.mu.Unlock()
		return
	}

	target, err := s.url(token)
	if err != nil {
		s.logger.Error("invalid realtime endpoint", logger.F("endpoint", s.opts.Endpoint), logger.Err(err))
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(domain.ConnectionConnecting)
	s.mu.Unlock()

	log := s.logger.With(logger.F("url", redact.URL(target)))
	dialCtx, cancelDial := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancelDial()

	conn, err := s.opts.Dialer.Dial(dialCtx, target)
	if err != nil {
		log.Warn("realtime dial failed", logger.Err(err))
		s.handleClosed(gen, nil, err)
		return
	}

	hello, err := EncodeHello(s.opts.Topics)
	if err == nil {
		err = conn.Write(dialCtx, websocket.MessageText, hello)
	}
	if err != nil {
		log.Warn("client hello failed", logger.Err(err))
		_ = conn.Close(websocket.StatusInternalError, "hello failed")
		s.handleClosed(gen, nil, err)
		return
	}

	connCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	s.conn = conn
	s.cancel = cancel
	s.attempt = 0
	s.handshake = false
	s.setStateLocked(domain.ConnectionConnected)
	s.mu.Unlock()

	log.Info("realtime connected", logger.F("topics", s.opts.Topics))
	go s.readLoop(connCtx, gen, conn)
}

func (s *Session) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.handleClosed(gen, conn, err)
			return
		}
		if typ != websocket.MessageText {
			s.logger.Debug("dropping non-text frame", logger.F("type", int(typ)))
			continue
		}
		s.handleFrame(gen, data)
	}
}

func (s *Session) handleFrame(gen uint64, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		s.logger.Warn("dropping frame", logger.F("size", len(data)), logger.Err(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug("dropping frame from stale connection", logger.F("type", frame.Type))
		return
	}
	if !s.handshake && frame.Type != FrameServerHello {
		s.logger.Debug("frame received before server_hello", logger.F("type", frame.Type))
	}
	switch frame.Type {
	case FrameServerHello:
		s.handshake = true
		s.logger.Info("realtime handshake complete", logger.F("subscribed_topics", frame.SubscribedTopics))
	case FrameNotify:
		s.opts.Sink.ApplyPush(*frame.Notification)
	case FrameReadAck:
		s.opts.Sink.ApplyReadAck(*frame.UnreadCount)
	}
}

// handleClosed treats every close and dial failure the same way: mark the
// session disconnected and schedule the next attempt.
func (s *Session) handleClosed(gen uint64, conn Conn, cause error) {
	s.mu.Lock()
	if s.gen != gen || !s.active {
		s.mu.Unlock()
		return
	}
	if conn != nil && s.conn != conn {
		s.mu.Unlock()
		return
	}
	release := s.teardownLocked()
	s.setStateLocked(domain.ConnectionDisconnected)
	s.scheduleLocked(gen, cause)
	s.mu.Unlock()
	release()
}

func (s *Session) scheduleLocked(gen uint64, cause error) {
	if !s.opts.Policy.Allow(s.attempt) {
		s.logger.Warn("realtime reconnect attempts exhausted",
			logger.F("attempts", s.attempt),
			logger.F("identity", s.identity.String()),
		)
		return
	}
	s.attempt++
	delay := s.opts.Policy.Delay(s.attempt)
	fields := []logger.Field{logger.F("attempt", s.attempt), logger.F("delay", delay.String())}
	if cause != nil {
		fields = append(fields, logger.Err(cause))
	}
	s.logger.Info("realtime reconnect scheduled", fields...)
	s.setStateLocked(domain.ConnectionReconnectScheduled)
	s.timer = s.opts.Scheduler.AfterFunc(delay, func() { s.reconnect(gen) })
}

func (s *Session) reconnect(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || !s.active {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.open(context.Background(), gen)
}

// teardownLocked detaches the connection and timer; the returned func
// closes them and must be called after the lock is released.
func (s *Session) teardownLocked() func() {
	timer, conn, cancel := s.timer, s.conn, s.cancel
	s.timer, s.conn, s.cancel = nil, nil, nil
	s.handshake = false
	return func() {
		if timer != nil {
			timer.Stop()
		}
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "closing")
		}
	}
}

func (s *Session) setStateLocked(state domain.ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state
	s.opts.Sink.SetConnection(state)
}

func (s *Session) url(token string) (string, error) {
	u, err := url.Parse(s.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
