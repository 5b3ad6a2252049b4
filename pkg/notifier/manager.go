package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goliatone/go-notifications-client/internal/bootstrap"
	"github.com/goliatone/go-notifications-client/internal/readsync"
	"github.com/goliatone/go-notifications-client/internal/state"
	"github.com/goliatone/go-notifications-client/internal/transport"
	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/store"
)

var (
	ErrIncompleteIdentity = errors.New("notifier: identity requires both organization and user")
	// ErrNoIdentity is returned by operations that need an active identity.
	ErrNoIdentity = readsync.ErrNoIdentity
	// ErrSuperseded is returned by SetIdentity when Stop or another
	// SetIdentity replaced the activation before it finished.
	ErrSuperseded = errors.New("notifier: activation superseded")
)

// Manager drives the activation lifecycle: it tears down the previous
// identity, seeds the store from the cache, runs the bootstrap fetch and
// opens the realtime session.
//
// The lock only covers the switch itself (cancel the previous activation,
// stop the session, reset the store). Cache reads, bootstrap requests and
// the dial run outside it under a per-activation context, so Stop or a new
// identity cancels them instead of waiting.
type Manager struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	activating uint64

	store     *state.Store
	session   *transport.Session
	bootstrap *bootstrap.Fetcher
	cache     store.SnapshotRepository
	logger    logger.Logger
}

// Dependencies bundles the components the manager coordinates.
type Dependencies struct {
	Store     *state.Store
	Session   *transport.Session
	Bootstrap *bootstrap.Fetcher
	Cache     store.SnapshotRepository
	Logger    logger.Logger
}

// NewManager validates deps.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("notifier: store is required")
	}
	if deps.Session == nil {
		return nil, errors.New("notifier: session is required")
	}
	if deps.Bootstrap == nil {
		return nil, errors.New("notifier: bootstrap fetcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	return &Manager{
		store:     deps.Store,
		session:   deps.Session,
		bootstrap: deps.Bootstrap,
		cache:     deps.Cache,
		logger:    deps.Logger,
	}, nil
}

// SetIdentity activates id. An empty identity deactivates the client. The
// same identity with an activation in flight, or a live or pending
// connection, is a no-op. Bootstrap failures are logged and leave state
// unchanged; they are not returned. ErrSuperseded means a later Stop or
// SetIdentity took over before this activation connected.
func (m *Manager) SetIdentity(ctx context.Context, id domain.Identity) error {
	if strings.TrimSpace(id.OrganizationID) == "" && strings.TrimSpace(id.UserID) == "" {
		m.Stop()
		return nil
	}
	if !id.Valid() {
		return ErrIncompleteIdentity
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	current, currentEpoch := m.store.Current()
	if current.Equal(id) && (m.activating == currentEpoch || m.session.State() != domain.ConnectionDisconnected) {
		m.mu.Unlock()
		return nil
	}
	m.cancelLocked()
	m.session.Stop()
	epoch := m.store.Reset(id)
	actx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.activating = epoch
	m.mu.Unlock()

	defer m.finish(epoch, cancel)

	log := m.logger.With(logger.F("identity", id.String()))
	if cached, ok := m.loadCache(actx, id); ok {
		m.store.Seed(epoch, cached.Notifications, cached.UnreadCount)
	}
	if err := m.bootstrap.Fetch(actx, epoch); err != nil {
		log.Warn("bootstrap incomplete", logger.Err(err))
	}
	if !m.store.IsCurrent(epoch) || actx.Err() != nil {
		log.Debug("activation superseded before connect")
		return ErrSuperseded
	}
	if err := m.session.Connect(actx, id); err != nil {
		if actx.Err() != nil {
			return ErrSuperseded
		}
		return err
	}
	log.Info("identity activated")
	return nil
}

// Stop cancels any activation in flight, closes the session, cancels
// pending reconnects and clears local state. Results of in-flight requests
// are discarded.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.session.Stop()
	m.store.Reset(domain.Identity{})
}

// Reload re-runs the bootstrap fetch for the active identity.
func (m *Manager) Reload(ctx context.Context) error {
	id, epoch := m.store.Current()
	if !id.Valid() {
		return ErrNoIdentity
	}
	return m.bootstrap.Fetch(ctx, epoch)
}

func (m *Manager) cancelLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.activating = 0
}

// finish releases the activation context. The session's read loop does not
// depend on it, so cancelling after Connect returns is safe.
func (m *Manager) finish(epoch uint64, cancel context.CancelFunc) {
	cancel()
	m.mu.Lock()
	if m.activating == epoch {
		m.cancel = nil
		m.activating = 0
	}
	m.mu.Unlock()
}

func (m *Manager) loadCache(ctx context.Context, id domain.Identity) (domain.Snapshot, bool) {
	if m.cache == nil {
		return domain.Snapshot{}, false
	}
	snap, err := m.cache.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("snapshot cache read failed", logger.F("identity", id.String()), logger.Err(err))
		}
		return domain.Snapshot{}, false
	}
	return snap, true
}
