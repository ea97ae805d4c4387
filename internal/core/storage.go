package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/internal/config"
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/memory"
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/postgres"
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/sqlite"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// StorageDriver identifies a concrete row backend implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// CloseFunc releases resources held by an opened backend.
type CloseFunc func() error

// OpenBackend selects a backend from cfg. Defaults to sqlite when the driver
// is unset.
func OpenBackend(ctx context.Context, cfg config.BackendConfig, logger Logger) (domain.Backend, CloseFunc, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	driver := StorageDriver(strings.ToLower(cfg.Driver))
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		logger.Info("opened backend", "driver", driver)
		return memory.NewStore(), func() error { return nil }, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened backend", "driver", driver, "path", store.Path())
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, postgres.Options{
			RowSecurity:      cfg.RowSecurity,
			ApplyRowSecurity: cfg.RowSecurity,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened backend", "driver", driver, "row_security", cfg.RowSecurity)
		return store, func() error { store.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
