package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/credentials"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	pushes []domain.Notification
	acks   []int
	states []domain.ConnectionState
}

func (r *recordingSink) ApplyPush(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, n)
}

func (r *recordingSink) ApplyReadAck(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, count)
}

func (r *recordingSink) SetConnection(state domain.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushes), len(r.acks)
}

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
	timers []*fakeTimer
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := &fakeTimer{}
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, f)
	m.timers = append(m.timers, timer)
	return timer
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.funcs)
}

func (m *manualScheduler) fire(i int) {
	m.mu.Lock()
	f := m.funcs[i]
	m.mu.Unlock()
	f()
}

type failingDialer struct {
	mu    sync.Mutex
	dials int
}

func (d *failingDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	return nil, errors.New("connection refused")
}

type fakeConn struct {
	frames chan []byte
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8)}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case data, ok := <-c.frames:
		if !ok {
			return 0, nil, errors.New("closed")
		}
		return websocket.MessageText, data, nil
	}
}

func (c *fakeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	return nil
}

func (c *fakeConn) Close(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type queueDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
}

func (d *queueDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	d.urls = append(d.urls, url)
	return conn, nil
}

var (
	orgA = domain.Identity{OrganizationID: "org-a", UserID: "user-1"}
	orgB = domain.Identity{OrganizationID: "org-b", UserID: "user-1"}
)

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Endpoint == "" {
		opts.Endpoint = "wss://notify.example.com/realtime/org"
	}
	session, err := NewSession(opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(session.Stop)
	return session
}

func (s *Session) currentGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func TestSessionReconnectBackoffSchedule(t *testing.T) {
	sink := &recordingSink{}
	sched := &manualScheduler{}
	dialer := &failingDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      dialer,
		Scheduler:   sched,
		Sink:        sink,
	})

	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for i := 0; i < 10; i++ {
		if sched.pending() != i+1 {
			t.Fatalf("expected %d scheduled attempts, got %d", i+1, sched.pending())
		}
		sched.fire(i)
	}

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	if len(sched.delays) != len(want) {
		t.Fatalf("expected no 11th attempt, got %d scheduled", len(sched.delays))
	}
	for i, d := range want {
		if sched.delays[i] != d {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, d, sched.delays[i])
		}
	}
	if dialer.dials != 11 {
		t.Fatalf("expected initial dial plus 10 retries, got %d", dialer.dials)
	}
	if session.State() != domain.ConnectionDisconnected {
		t.Fatalf("expected disconnected after giving up, got %s", session.State())
	}
}

func TestSessionMissingTokenDoesNotConnect(t *testing.T) {
	sink := &recordingSink{}
	sched := &manualScheduler{}
	dialer := &queueDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.None{},
		Dialer:      dialer,
		Scheduler:   sched,
		Sink:        sink,
	})

	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("expected no error without a credential, got %v", err)
	}
	if len(dialer.conns) != 0 {
		t.Fatalf("expected no dial without a credential")
	}
	if sched.pending() != 0 {
		t.Fatalf("expected no reconnect without a credential")
	}
	if session.State() != domain.ConnectionDisconnected {
		t.Fatalf("expected disconnected, got %s", session.State())
	}
}

func TestSessionRejectsInvalidIdentity(t *testing.T) {
	session := newTestSession(t, Options{Sink: &recordingSink{}, Dialer: &queueDialer{}})
	if err := session.Connect(context.Background(), domain.Identity{OrganizationID: "org"}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestSessionSendsHelloAndTokenQuery(t *testing.T) {
	dialer := &queueDialer{}
	session := newTestSession(t, Options{
		Topics:      []string{"notifications"},
		Credentials: credentials.Static("abc def"),
		Dialer:      dialer,
		Scheduler:   &manualScheduler{},
		Sink:        &recordingSink{},
	})
	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := dialer.urls[0]; got != "wss://notify.example.com/realtime/org?token=abc+def" {
		t.Fatalf("unexpected url %s", got)
	}
	conn := dialer.conns[0]
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.writes) != 1 || string(conn.writes[0]) != `{"type":"client_hello","topics":["notifications"]}` {
		t.Fatalf("unexpected writes: %q", conn.writes)
	}
	if session.State() != domain.ConnectionConnected {
		t.Fatalf("expected connected")
	}
}

func TestSessionDiscardsFramesFromStaleConnection(t *testing.T) {
	sink := &recordingSink{}
	dialer := &queueDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      dialer,
		Scheduler:   &manualScheduler{},
		Sink:        sink,
	})

	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect a: %v", err)
	}
	staleGen := session.currentGen()
	if err := session.Connect(context.Background(), orgB); err != nil {
		t.Fatalf("connect b: %v", err)
	}
	if !dialer.conns[0].isClosed() {
		t.Fatalf("expected first connection closed on identity change")
	}

	session.handleFrame(staleGen, []byte(`{"type":"notify","notification":{"id":"late","title":"old org"}}`))
	session.handleFrame(staleGen, []byte(`{"type":"read_ack","unreadCount":9}`))
	if pushes, acks := sink.counts(); pushes != 0 || acks != 0 {
		t.Fatalf("expected stale frames discarded, got %d pushes %d acks", pushes, acks)
	}

	session.handleFrame(session.currentGen(), []byte(`{"type":"notify","notification":{"id":"fresh","title":"new org"}}`))
	if pushes, _ := sink.counts(); pushes != 1 {
		t.Fatalf("expected current frame applied, got %d pushes", pushes)
	}
	if session.Identity() != orgB {
		t.Fatalf("expected identity %v, got %v", orgB, session.Identity())
	}
}

func TestSessionDropsMalformedFrames(t *testing.T) {
	sink := &recordingSink{}
	dialer := &queueDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      dialer,
		Scheduler:   &manualScheduler{},
		Sink:        sink,
	})
	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	gen := session.currentGen()
	for _, raw := range []string{`{oops`, `{"type":"read_ack","unreadCount":"x"}`, `{"type":"mystery"}`, ``} {
		session.handleFrame(gen, []byte(raw))
	}
	if pushes, acks := sink.counts(); pushes != 0 || acks != 0 {
		t.Fatalf("expected malformed frames dropped, got %d pushes %d acks", pushes, acks)
	}
	if session.State() != domain.ConnectionConnected {
		t.Fatalf("expected session to stay connected, got %s", session.State())
	}
}

func TestSessionStopCancelsPendingReconnect(t *testing.T) {
	sched := &manualScheduler{}
	dialer := &failingDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      dialer,
		Scheduler:   sched,
		Sink:        &recordingSink{},
	})
	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if sched.pending() != 1 {
		t.Fatalf("expected reconnect scheduled")
	}
	session.Stop()
	if !sched.timers[0].stopped {
		t.Fatalf("expected timer stopped")
	}
	sched.fire(0)
	if dialer.dials != 1 {
		t.Fatalf("expected no dial after stop, got %d", dialer.dials)
	}
}

func TestSessionReconnectsAfterServerClose(t *testing.T) {
	sched := &manualScheduler{}
	dialer := &queueDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      dialer,
		Scheduler:   sched,
		Sink:        &recordingSink{},
	})
	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	close(dialer.conns[0].frames)

	waitFor(t, func() bool { return sched.pending() == 1 })
	if sched.delays[0] != time.Second {
		t.Fatalf("expected first reconnect after 1s, got %s", sched.delays[0])
	}
	sched.fire(0)
	if session.State() != domain.ConnectionConnected {
		t.Fatalf("expected reconnected, got %s", session.State())
	}
	if len(dialer.conns) != 2 {
		t.Fatalf("expected second dial, got %d", len(dialer.conns))
	}
}

func TestSessionAgainstWebsocketServer(t *testing.T) {
	tokens := make(chan string, 1)
	hellos := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		_, hello, err := conn.Read(ctx)
		if err != nil {
			return
		}
		hellos <- string(hello)
		for _, frame := range []string{
			`{"type":"server_hello","subscribedTopics":["notifications","notifications.read"]}`,
			`{"type":"notify","notification":{"id":"n1","channelId":"c1","title":"Build finished","severity":"info"}}`,
			`{"type":"read_ack","unreadCount":3}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	session := newTestSession(t, Options{
		Endpoint:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/org",
		Topics:      []string{"notifications", "notifications.read"},
		Credentials: credentials.Static("secret-token"),
		Scheduler:   &manualScheduler{},
		Sink:        sink,
	})
	defer session.Stop()
	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if got := <-tokens; got != "secret-token" {
		t.Fatalf("expected token query, got %q", got)
	}
	if got := <-hellos; got != `{"type":"client_hello","topics":["notifications","notifications.read"]}` {
		t.Fatalf("unexpected hello %s", got)
	}
	waitFor(t, func() bool {
		pushes, acks := sink.counts()
		return pushes == 1 && acks == 1
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.pushes[0].ID != "n1" || sink.pushes[0].ChannelID != "c1" {
		t.Fatalf("unexpected push %+v", sink.pushes[0])
	}
	if sink.acks[0] != 3 {
		t.Fatalf("expected read_ack count 3, got %d", sink.acks[0])
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type recordingLogger struct {
	logger.Nop
	mu     sync.Mutex
	debugs []string
}

func (l *recordingLogger) With(fields ...logger.Field) logger.Logger { return l }

func (l *recordingLogger) Debug(msg string, fields ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, msg)
}

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.debugs {
		if m == msg {
			n++
		}
	}
	return n
}

func TestSessionTracksServerHello(t *testing.T) {
	sink := &recordingSink{}
	lgr := &recordingLogger{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      &queueDialer{},
		Scheduler:   &manualScheduler{},
		Sink:        sink,
		Logger:      lgr,
	})
	if err := session.Connect(context.Background(), orgA); err != nil {
		t.Fatalf("connect: %v", err)
	}
	gen := session.currentGen()
	const early = "frame received before server_hello"

	session.handleFrame(gen, []byte(`{"type":"notify","notification":{"id":"n1","title":"early"}}`))
	if got := lgr.count(early); got != 1 {
		t.Fatalf("expected early frame logged once, got %d", got)
	}
	if pushes, _ := sink.counts(); pushes != 1 {
		t.Fatalf("expected early frame still applied, got %d pushes", pushes)
	}

	session.handleFrame(gen, []byte(`{"type":"server_hello","subscribedTopics":["notifications"]}`))
	session.handleFrame(gen, []byte(`{"type":"read_ack","unreadCount":0}`))
	if got := lgr.count(early); got != 1 {
		t.Fatalf("expected no early-frame log after server_hello, got %d", got)
	}
}

func TestSessionConnectWithCanceledContext(t *testing.T) {
	dialer := &queueDialer{}
	session := newTestSession(t, Options{
		Credentials: credentials.Static("token"),
		Dialer:      dialer,
		Scheduler:   &manualScheduler{},
		Sink:        &recordingSink{},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := session.Connect(ctx, orgA); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dialer.conns) != 0 {
		t.Fatalf("expected no dial, got %d", len(dialer.conns))
	}
	if session.State() != domain.ConnectionDisconnected || session.Identity().Valid() {
		t.Fatalf("expected idle session, got %s for %s", session.State(), session.Identity())
	}
}
