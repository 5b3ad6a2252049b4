package commands

import (
	"context"
	"errors"
	"strings"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/logger"
)

// Catalog exposes go-command compatible handlers for host transports.
type Catalog struct {
	AckOne           command.Commander[AckOne]
	AckAll           command.Commander[AckAll]
	MarkReadLocal    command.Commander[MarkReadLocal]
	MarkAllReadLocal command.Commander[MarkAllReadLocal]
	Clear            command.Commander[Clear]
	Reload           command.Commander[Reload]
}

type readService interface {
	AckOne(ctx context.Context, id string) error
	AckAll(ctx context.Context) error
	MarkReadLocal(id string) bool
	MarkAllReadLocal()
}

type stateService interface {
	Clear()
}

type reloadService interface {
	Reload(ctx context.Context) error
}

// Dependencies wires the client services into the command catalog.
type Dependencies struct {
	Reads  readService
	State  stateService
	Reload reloadService
	Logger logger.Logger
}

// NewCatalog builds the command catalog using the supplied dependencies.
func NewCatalog(deps Dependencies) (*Catalog, error) {
	if deps.Reads == nil {
		return nil, errors.New("commands: read synchronizer is required")
	}
	if deps.State == nil {
		return nil, errors.New("commands: state is required")
	}
	if deps.Reload == nil {
		return nil, errors.New("commands: reload service is required")
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}

	return &Catalog{
		AckOne:           ackOneCommand{svc: deps.Reads},
		AckAll:           ackAllCommand{svc: deps.Reads},
		MarkReadLocal:    markReadLocalCommand{svc: deps.Reads, logger: deps.Logger},
		MarkAllReadLocal: markAllReadLocalCommand{svc: deps.Reads},
		Clear:            clearCommand{svc: deps.State},
		Reload:           reloadCommand{svc: deps.Reload},
	}, nil
}

// AckOne acknowledges a notification and everything before it in its channel.
type AckOne struct {
	ID string `json:"id"`
}

type ackOneCommand struct {
	svc readService
}

func (c ackOneCommand) Execute(ctx context.Context, msg AckOne) error {
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		return errors.New("commands: notification id is required")
	}
	return c.svc.AckOne(ctx, id)
}

// AckAll acknowledges every channel with unread notifications.
type AckAll struct{}

type ackAllCommand struct {
	svc readService
}

func (c ackAllCommand) Execute(ctx context.Context, _ AckAll) error {
	return c.svc.AckAll(ctx)
}

// MarkReadLocal reconciles one notification already acknowledged elsewhere.
type MarkReadLocal struct {
	ID string `json:"id"`
}

type markReadLocalCommand struct {
	svc    readService
	logger logger.Logger
}

func (c markReadLocalCommand) Execute(ctx context.Context, msg MarkReadLocal) error {
	id := strings.TrimSpace(msg.ID)
	if id == "" {
		return errors.New("commands: notification id is required")
	}
	if !c.svc.MarkReadLocal(id) {
		c.logger.Debug("mark read local had no effect", logger.F("notification_id", id))
	}
	return nil
}

type MarkAllReadLocal struct{}

type markAllReadLocalCommand struct {
	svc readService
}

func (c markAllReadLocalCommand) Execute(ctx context.Context, _ MarkAllReadLocal) error {
	c.svc.MarkAllReadLocal()
	return nil
}

// Clear wipes the local buffer and counter.
type Clear struct{}

type clearCommand struct {
	svc stateService
}

func (c clearCommand) Execute(ctx context.Context, _ Clear) error {
	c.svc.Clear()
	return nil
}

// Reload re-runs the bootstrap fetch for the active identity.
type Reload struct{}

type reloadCommand struct {
	svc reloadService
}

func (c reloadCommand) Execute(ctx context.Context, _ Reload) error {
	return c.svc.Reload(ctx)
}
