package core

import (
	"context"
	"fmt"
	"time"

	"ledgerql/internal/infra/persistence/postgres"
	"ledgerql/internal/infra/persistence/sqlite"
	"ledgerql/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // private in-memory sqlite (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and tunes a backend.
type StorageOptions struct {
	Driver          StorageDriver
	SQLitePath      string
	PostgresDSN     string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OpenPersistentStore opens the backend named by opts.Driver and applies the
// schema. Defaults to sqlite when unset.
func OpenPersistentStore(ctx context.Context, opts StorageOptions) (domain.PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		store, err := sqlite.NewMemoryStore(ctx)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN, postgres.Options{
			MaxOpenConns:    opts.MaxOpenConns,
			ConnMaxLifetime: opts.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
