package bunrepo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-notifications-client/pkg/domain"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/store"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.DriverName(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range Models() {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		if err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func TestSnapshotRepositoryBun(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()
	id := domain.Identity{OrganizationID: "org-1", UserID: "user-1"}

	if _, err := repo.Load(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := domain.Snapshot{
		Identity: id,
		Notifications: []domain.Notification{
			{ID: "n2", ChannelID: "c1", Title: "second", Severity: domain.SeverityWarn, CreatedAt: created, Payload: domain.JSONMap{"job": "build"}},
			{ID: "n1", Title: "first", Severity: domain.SeverityInfo, CreatedAt: created, Read: true},
		},
		UnreadCount: 1,
		Version:     7,
	}
	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.UnreadCount != 1 || got.Version != 7 || got.Identity != id {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if len(got.Notifications) != 2 || got.Notifications[0].ID != "n2" || got.Notifications[1].ID != "n1" {
		t.Fatalf("expected newest-first order, got %+v", got.Notifications)
	}
	if got.Notifications[0].Payload["job"] != "build" || got.Notifications[0].Severity != domain.SeverityWarn {
		t.Fatalf("unexpected first notification %+v", got.Notifications[0])
	}
	if !got.Notifications[1].Read || got.Notifications[1].ChannelID != "" {
		t.Fatalf("unexpected second notification %+v", got.Notifications[1])
	}

	snap.Notifications = snap.Notifications[:1]
	snap.UnreadCount = 0
	snap.Version = 8
	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, err = repo.Load(ctx, id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.Notifications) != 1 || got.UnreadCount != 0 || got.Version != 8 {
		t.Fatalf("expected replaced snapshot, got %+v", got)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Load(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
