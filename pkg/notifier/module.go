package notifier

import (
	"context"
	"errors"
	"net/http"

	"github.com/goliatone/go-notifications-client/internal/di"
	"github.com/goliatone/go-notifications-client/internal/transport"
	"github.com/goliatone/go-notifications-client/pkg/commands"
	"github.com/goliatone/go-notifications-client/pkg/config"
	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/broadcaster"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/credentials"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/storage"
)

// ModuleOptions configure the notifier module facade.
type ModuleOptions struct {
	Config      config.Config
	Storage     storage.Providers
	Logger      logger.Logger
	Broadcaster broadcaster.Broadcaster
	Credentials credentials.Provider
	HTTPClient  *http.Client
	Dialer      transport.Dialer
	Scheduler   transport.Scheduler
}

// Module bundles the container and exposes the client operations.
type Module struct {
	container *di.Container
	manager   *Manager
	commands  *commands.Registry
}

// NewModule assembles the store, transport, REST client, manager, and commands.
func NewModule(opts ModuleOptions) (*Module, error) {
	container, err := di.New(di.Options{
		Config:      opts.Config,
		Storage:     opts.Storage,
		Logger:      opts.Logger,
		Broadcaster: opts.Broadcaster,
		Credentials: opts.Credentials,
		HTTPClient:  opts.HTTPClient,
		Dialer:      opts.Dialer,
		Scheduler:   opts.Scheduler,
	})
	if err != nil {
		return nil, err
	}
	manager, err := NewManager(Dependencies{
		Store:     container.Store,
		Session:   container.Session,
		Bootstrap: container.Bootstrap,
		Cache:     container.Storage.Snapshots,
		Logger:    container.Logger,
	})
	if err != nil {
		return nil, err
	}
	m := &Module{container: container, manager: manager}
	registry, err := commands.New(m, container.Logger)
	if err != nil {
		return nil, err
	}
	m.commands = registry
	return m, nil
}

// SetIdentity activates the client for id; see Manager.SetIdentity.
func (m *Module) SetIdentity(ctx context.Context, id domain.Identity) error {
	return m.manager.SetIdentity(ctx, id)
}

// Stop tears down the connection and clears local state.
func (m *Module) Stop() {
	m.manager.Stop()
}

// Close stops the client, flushes the snapshot cache and releases storage.
func (m *Module) Close() error {
	m.manager.Stop()
	var errs []error
	if m.container.Cache != nil {
		errs = append(errs, m.container.Cache.Close())
	}
	errs = append(errs, m.container.Storage.Close())
	return errors.Join(errs...)
}

// Reload re-runs the bootstrap fetch for the active identity.
func (m *Module) Reload(ctx context.Context) error {
	return m.manager.Reload(ctx)
}

// Snapshot returns the current read-only state.
func (m *Module) Snapshot() domain.Snapshot {
	return m.container.Store.Snapshot()
}

// Subscribe registers an additional broadcaster for snapshot and
// connection events.
func (m *Module) Subscribe(target broadcaster.Broadcaster) {
	m.container.Broadcaster.Add(target)
}

// AckOne acknowledges id and everything before it in its channel.
func (m *Module) AckOne(ctx context.Context, id string) error {
	return m.container.Reads.AckOne(ctx, id)
}

// AckAll acknowledges every channel with unread notifications.
func (m *Module) AckAll(ctx context.Context) error {
	return m.container.Reads.AckAll(ctx)
}

// MarkReadLocal marks id read without a server round-trip.
func (m *Module) MarkReadLocal(id string) bool {
	return m.container.Reads.MarkReadLocal(id)
}

// MarkAllReadLocal marks everything read without a server round-trip.
func (m *Module) MarkAllReadLocal() {
	m.container.Reads.MarkAllReadLocal()
}

// Clear wipes the local buffer and counter. Nothing is sent to the server.
func (m *Module) Clear() {
	m.container.Store.Clear()
}

// Commands returns the go-command registry.
func (m *Module) Commands() *commands.Registry {
	if m == nil {
		return nil
	}
	return m.commands
}

// Config returns the effective module configuration.
func (m *Module) Config() config.Config {
	if m == nil || m.container == nil {
		return config.Config{}
	}
	return m.container.Config
}

// Container returns the internal DI container.
// This is exposed for advanced use cases like direct storage access.
func (m *Module) Container() *di.Container {
	if m == nil {
		return nil
	}
	return m.container
}

// Manager returns the identity lifecycle manager.
func (m *Module) Manager() *Manager {
	if m == nil {
		return nil
	}
	return m.manager
}
