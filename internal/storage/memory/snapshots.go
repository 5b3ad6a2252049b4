package memory

import (
	"context"
	"sync"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/store"
)

// SnapshotRepository keeps cached snapshots in a map. Useful for tests and
// for hosts that only need the cache for the life of the process.
type SnapshotRepository struct {
	mu      sync.RWMutex
	records map[string]domain.Snapshot
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{records: make(map[string]domain.Snapshot)}
}

func (r *SnapshotRepository) Load(ctx context.Context, identity domain.Identity) (domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.records[identity.Key()]
	if !ok {
		return domain.Snapshot{}, store.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := cloneSnapshot(snapshot)
	snap.IsConnected = false
	snap.Connection = domain.ConnectionDisconnected
	r.records[snapshot.Identity.Key()] = snap
	return nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[identity.Key()]; !ok {
		return store.ErrNotFound
	}
	delete(r.records, identity.Key())
	return nil
}

func cloneSnapshot(snap domain.Snapshot) domain.Snapshot {
	out := snap
	out.Notifications = domain.CloneNotifications(snap.Notifications)
	if out.Notifications == nil {
		out.Notifications = []domain.Notification{}
	}
	return out
}
