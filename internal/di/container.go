package di

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/goliatone/go-notifications-client/internal/api"
	"github.com/goliatone/go-notifications-client/internal/bootstrap"
	"github.com/goliatone/go-notifications-client/internal/readsync"
	"github.com/goliatone/go-notifications-client/internal/state"
	"github.com/goliatone/go-notifications-client/internal/transport"
	"github.com/goliatone/go-notifications-client/pkg/config"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/broadcaster"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/credentials"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
	"github.com/goliatone/go-notifications-client/pkg/retry"
	"github.com/goliatone/go-notifications-client/pkg/storage"
)

// Options configure the DI container.
type Options struct {
	Config      config.Config
	Storage     storage.Providers
	Logger      logger.Logger
	Broadcaster broadcaster.Broadcaster
	Credentials credentials.Provider
	HTTPClient  *http.Client
	Dialer      transport.Dialer
	Scheduler   transport.Scheduler
}

// Container wires the store, transport, REST client, bootstrap fetcher and
// read synchronizer for one client.
type Container struct {
	Config      config.Config
	Storage     storage.Providers
	Logger      logger.Logger
	Broadcaster *broadcaster.Fanout
	Cache       *storage.SnapshotSink
	Store       *state.Store
	API         *api.Client
	Session     *transport.Session
	Bootstrap   *bootstrap.Fetcher
	Reads       *readsync.Synchronizer
}

func isZeroConfig(cfg config.Config) bool {
	return reflect.ValueOf(cfg).IsZero()
}

// New constructs the container using the supplied options.
func New(opts Options) (*Container, error) {
	if opts.Credentials == nil {
		return nil, errors.New("di: credential provider is required")
	}

	cfg := opts.Config
	if isZeroConfig(cfg) {
		cfg = config.Defaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lgr := opts.Logger
	if lgr == nil {
		lgr = &logger.Nop{}
	}

	fanout := broadcaster.NewFanout(opts.Broadcaster)
	var sink *storage.SnapshotSink
	if opts.Storage.Snapshots != nil {
		sink = storage.NewSnapshotSink(opts.Storage.Snapshots, lgr)
		fanout.Add(sink)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	st := state.New(state.Options{
		Capacity:       cfg.Inbox.Capacity,
		DefaultChannel: cfg.Inbox.DefaultChannel,
		Broadcaster:    fanout,
		Logger:         lgr,
	})

	client, err := api.New(api.Options{
		BaseURL:     cfg.Endpoint.BaseURL,
		HTTPClient:  httpClient,
		Credentials: opts.Credentials,
		MaxRetries:  cfg.HTTP.MaxRetries,
		Logger:      lgr,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := cfg.RealtimeEndpoint()
	if err != nil {
		return nil, err
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = transport.WebsocketDialer{ReadLimit: cfg.Realtime.ReadLimit}
	}
	session, err := transport.NewSession(transport.Options{
		Endpoint:    endpoint,
		Topics:      cfg.Realtime.Topics,
		Credentials: opts.Credentials,
		Dialer:      dialer,
		Scheduler:   opts.Scheduler,
		Policy: retry.Policy{
			Backoff: retry.ExponentialBackoff{
				Base: cfg.Realtime.ReconnectBase,
				Max:  cfg.Realtime.ReconnectMax,
			},
			MaxAttempts: cfg.Realtime.MaxReconnectAttempts,
		},
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		Sink:             st,
		Logger:           lgr,
	})
	if err != nil {
		return nil, err
	}

	fetcher, err := bootstrap.New(bootstrap.Options{
		Source: client,
		Target: st,
		Limit:  cfg.Inbox.HistoryLimit,
		Logger: lgr,
	})
	if err != nil {
		return nil, err
	}

	reads, err := readsync.New(readsync.Options{
		Acknowledger: client,
		Store:        st,
		AckTimeout:   cfg.HTTP.AckTimeout,
		Logger:       lgr,
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:      cfg,
		Storage:     opts.Storage,
		Logger:      lgr,
		Broadcaster: fanout,
		Cache:       sink,
		Store:       st,
		API:         client,
		Session:     session,
		Bootstrap:   fetcher,
		Reads:       reads,
	}, nil
}
