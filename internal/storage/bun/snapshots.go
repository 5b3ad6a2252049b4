package bunrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Models lists the tables the snapshot cache needs.
func Models() []any {
	return []any{
		(*domain.CachedNotification)(nil),
		(*domain.CachedCounter)(nil),
	}
}

// SnapshotRepository stores cached snapshots in two tables: one row per
// buffered notification and one counter row per identity.
type SnapshotRepository struct {
	db            *bun.DB
	notifications repository.Repository[*domain.CachedNotification]
	counters      repository.Repository[*domain.CachedCounter]
}

func NewSnapshotRepository(db *bun.DB) *SnapshotRepository {
	notifications := repository.ModelHandlers[*domain.CachedNotification]{
		NewRecord:          func() *domain.CachedNotification { return &domain.CachedNotification{} },
		GetID:              func(n *domain.CachedNotification) uuid.UUID { return n.ID },
		SetID:              func(n *domain.CachedNotification, id uuid.UUID) { n.ID = id },
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: func(n *domain.CachedNotification) string { return n.ID.String() },
	}
	counters := repository.ModelHandlers[*domain.CachedCounter]{
		NewRecord:          func() *domain.CachedCounter { return &domain.CachedCounter{} },
		GetID:              func(c *domain.CachedCounter) uuid.UUID { return c.ID },
		SetID:              func(c *domain.CachedCounter, id uuid.UUID) { c.ID = id },
		GetIdentifier:      func() string { return "identity_key" },
		GetIdentifierValue: func(c *domain.CachedCounter) string { return c.IdentityKey },
	}
	return &SnapshotRepository{
		db:            db,
		notifications: repository.MustNewRepository[*domain.CachedNotification](db, notifications),
		counters:      repository.MustNewRepository[*domain.CachedCounter](db, counters),
	}
}

func (r *SnapshotRepository) Load(ctx context.Context, identity domain.Identity) (domain.Snapshot, error) {
	key := identity.Key()
	counter, err := r.counters.Get(ctx, withIdentityKey(key))
	if err != nil {
		return domain.Snapshot{}, mapError(err)
	}
	records, _, err := r.notifications.List(ctx, withIdentityKey(key), byPosition())
	if err != nil {
		return domain.Snapshot{}, mapError(err)
	}
	items := make([]domain.Notification, len(records))
	for i, rec := range records {
		items[i] = rec.Notification()
	}
	return domain.Snapshot{
		Identity:      domain.Identity{OrganizationID: counter.OrganizationID, UserID: counter.UserID},
		Notifications: items,
		UnreadCount:   counter.UnreadCount,
		Connection:    domain.ConnectionDisconnected,
		Version:       uint64(counter.Version),
	}, nil
}

// Save replaces everything cached for the snapshot's identity in one
// transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot domain.Snapshot) error {
	key := snapshot.Identity.Key()
	now := time.Now().UTC()

	rows := make([]domain.CachedNotification, len(snapshot.Notifications))
	for i, n := range snapshot.Notifications {
		rows[i] = domain.NewCachedNotification(snapshot.Identity, i, n)
		rows[i].Touch(now)
	}
	counter := &domain.CachedCounter{
		IdentityKey:    key,
		OrganizationID: snapshot.Identity.OrganizationID,
		UserID:         snapshot.Identity.UserID,
		UnreadCount:    snapshot.UnreadCount,
		Version:        int64(snapshot.Version),
	}
	counter.Touch(now)

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteIdentity(ctx, tx, key); err != nil {
			return err
		}
		if len(rows) > 0 {
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return err
			}
		}
		_, err := tx.NewInsert().Model(counter).Exec(ctx)
		return err
	})
	return mapError(err)
}

func (r *SnapshotRepository) Delete(ctx context.Context, identity domain.Identity) error {
	key := identity.Key()
	if _, err := r.counters.Get(ctx, withIdentityKey(key)); err != nil {
		return mapError(err)
	}
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return deleteIdentity(ctx, tx, key)
	})
	return mapError(err)
}

func deleteIdentity(ctx context.Context, tx bun.Tx, key string) error {
	if _, err := tx.NewDelete().
		Model((*domain.CachedNotification)(nil)).
		Where("identity_key = ?", key).
		Exec(ctx); err != nil {
		return err
	}
	_, err := tx.NewDelete().
		Model((*domain.CachedCounter)(nil)).
		Where("identity_key = ?", key).
		Exec(ctx)
	return err
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if repository.IsRecordNotFound(err) {
		return store.ErrNotFound
	}
	return err
}
