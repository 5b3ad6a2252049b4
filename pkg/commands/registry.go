package commands

import (
	"context"

	command "github.com/goliatone/go-command"
	internalcommands "github.com/goliatone/go-notifications-client/internal/commands"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
)

// Re-export request types so consumers need not import internal packages.
type (
	AckOne           = internalcommands.AckOne
	AckAll           = internalcommands.AckAll
	MarkReadLocal    = internalcommands.MarkReadLocal
	MarkAllReadLocal = internalcommands.MarkAllReadLocal
	Clear            = internalcommands.Clear
	Reload           = internalcommands.Reload
)

// Registry exposes go-command compatible handlers backed by the client module.
type Registry struct {
	Catalog          *internalcommands.Catalog
	AckOne           command.Commander[AckOne]
	AckAll           command.Commander[AckAll]
	MarkReadLocal    command.Commander[MarkReadLocal]
	MarkAllReadLocal command.Commander[MarkAllReadLocal]
	Clear            command.Commander[Clear]
	Reload           command.Commander[Reload]
}

// Service is the surface the registry dispatches to. *notifier.Module
// satisfies it.
type Service interface {
	AckOne(ctx context.Context, id string) error
	AckAll(ctx context.Context) error
	MarkReadLocal(id string) bool
	MarkAllReadLocal()
	Clear()
	Reload(ctx context.Context) error
}

// New builds the registry around svc.
func New(svc Service, lgr logger.Logger) (*Registry, error) {
	catalog, err := internalcommands.NewCatalog(internalcommands.Dependencies{
		Reads:  svc,
		State:  svc,
		Reload: svc,
		Logger: lgr,
	})
	if err != nil {
		return nil, err
	}
	return &Registry{
		Catalog:          catalog,
		AckOne:           catalog.AckOne,
		AckAll:           catalog.AckAll,
		MarkReadLocal:    catalog.MarkReadLocal,
		MarkAllReadLocal: catalog.MarkAllReadLocal,
		Clear:            catalog.Clear,
		Reload:           catalog.Reload,
	}, nil
}

// Commanders returns every handler so callers can register them with go-command registries.
func (r *Registry) Commanders() []any {
	if r == nil {
		return nil
	}
	return []any{
		r.AckOne,
		r.AckAll,
		r.MarkReadLocal,
		r.MarkAllReadLocal,
		r.Clear,
		r.Reload,
	}
}
