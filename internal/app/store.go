package service

import (
	"context"
	"fmt"
	"time"

	repository "github.com/okian/sift/internal/adapters/repository"
	"github.com/okian/sift/internal/adapters/repository/gormstore"
	"github.com/okian/sift/internal/adapters/repository/pgxstore"
	"github.com/okian/sift/internal/adapters/repository/postgrest"
	"github.com/okian/sift/internal/adapters/repository/sqlitestore"
	"github.com/okian/sift/internal/config"
)

// OpenStore connects the backend named by cfg.StoreDriver and wraps it
// with latency and failure metrics.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	timeout := time.Duration(cfg.StoreTimeoutMS) * time.Millisecond

	var (
		store repository.Store
		err   error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store = repository.NewMemoryStore()

	case config.DriverSQLite:
		store, err = sqlitestore.Open(ctx, cfg.StoreURL, sqlitestore.WithTable(cfg.StoreTable))

	case config.DriverPgx:
		store, err = openPgx(ctx, cfg)

	case config.DriverPostgres:
		store, err = gormstore.Open(ctx, cfg.StoreURL,
			gormstore.WithTable(cfg.StoreTable),
			gormstore.WithPassword(cfg.StoreKey),
			gormstore.WithMaxConns(cfg.StoreMaxConns),
			gormstore.WithAutoMigrate(cfg.StoreAutoMigrate),
		)

	case config.DriverPostgREST:
		store, err = postgrest.New(cfg.StoreURL, cfg.StoreKey,
			postgrest.WithTable(cfg.StoreTable),
			postgrest.WithTimeout(timeout),
		)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return repository.Instrument(store, cfg.StoreDriver, timeout), nil
}

func openPgx(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	pool, err := pgxstore.Connect(ctx, cfg.StoreURL,
		pgxstore.MaxConns(cfg.StoreMaxConns),
		pgxstore.Password(cfg.StoreKey),
	)
	if err != nil {
		return nil, err
	}
	s := pgxstore.New(pool, cfg.StoreTable)
	if cfg.StoreAutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}
