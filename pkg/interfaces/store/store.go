package store

import (
	"context"
	"errors"

	"github.com/goliatone/go-notifications-client/pkg/domain"
)

// ErrNotFound is returned when nothing is cached for an identity.
var ErrNotFound = errors.New("store: not found")

// SnapshotRepository persists the last known inbox state per identity so a
// restarted client can render it before the bootstrap fetch completes.
// Connection state is never persisted.
type SnapshotRepository interface {
	Load(ctx context.Context, identity domain.Identity) (domain.Snapshot, error)
	Save(ctx context.Context, snapshot domain.Snapshot) error
	Delete(ctx context.Context, identity domain.Identity) error
}
