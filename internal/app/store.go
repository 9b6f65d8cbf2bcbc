package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"todoapi/internal/config"
	"todoapi/internal/db"
	"todoapi/internal/migrate"
	"todoapi/internal/repo"
	"todoapi/internal/store"
)

// OpenStore constructs the store selected by cfg.Store.Driver. The returned
// close function is always non-nil.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Driver {
	case config.DriverMemory, "":
		logger.Info().Str("driver", config.DriverMemory).Msg("using in-memory store")
		return store.NewMemory(), noop, nil
	case config.DriverSQLite:
		conn, err := db.Open(db.Config{Workspace: cfg.Store.Workspace})
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("migrate sqlite store: %w", err)
		}
		logger.Info().
			Str("driver", config.DriverSQLite).
			Str("path", db.Path(cfg.Store.Workspace)).
			Msg("using sqlite store")
		return repo.New(conn), conn.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
