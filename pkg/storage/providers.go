package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	bunrepo "github.com/goliatone/go-notifications-client/internal/storage/bun"
	"github.com/goliatone/go-notifications-client/internal/storage/memory"
	"github.com/goliatone/go-notifications-client/pkg/config"
	"github.com/goliatone/go-notifications-client/pkg/interfaces/store"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Providers exposes the repositories used by the client module.
type Providers struct {
	Snapshots store.SnapshotRepository
	closer    func() error
}

// Close releases the underlying database, when one was opened here.
func (p Providers) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// NewMemoryProviders returns repositories backed by in-memory maps.
func NewMemoryProviders() Providers {
	return Providers{Snapshots: memory.NewSnapshotRepository()}
}

// NewBunProviders wires Bun-backed repositories using go-repository-bun.
// The caller owns the *bun.DB lifecycle.
func NewBunProviders(db *bun.DB) Providers {
	if db == nil {
		panic("storage: bun DB is required")
	}

	// Register models so go-persistence-bun migrations can pick them up.
	persistence.RegisterModel(bunrepo.Models()...)

	return Providers{Snapshots: bunrepo.NewSnapshotRepository(db)}
}

// OpenSQLite opens dsn with the sqlite shim and creates the cache tables.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("storage: sqlite dsn is required")
	}
	sqldb, err := sql.Open(sqliteshim.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range bunrepo.Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: create table: %w", err)
		}
	}
	return db, nil
}

// FromConfig builds providers for the configured cache driver. It returns
// zero Providers when the cache is disabled.
func FromConfig(ctx context.Context, cfg config.CacheConfig) (Providers, error) {
	if !cfg.Enabled {
		return Providers{}, nil
	}
	switch cfg.Driver {
	case config.CacheDriverSQLite:
		db, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return Providers{}, err
		}
		providers := NewBunProviders(db)
		providers.closer = db.Close
		return providers, nil
	case config.CacheDriverMemory, "":
		return NewMemoryProviders(), nil
	default:
		return Providers{}, fmt.Errorf("storage: unsupported cache driver %q", cfg.Driver)
	}
}
