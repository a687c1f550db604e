package cli

import (
	"context"
	"fmt"

	"github.com/lazypower/matchmaker/internal/config"
	"github.com/lazypower/matchmaker/internal/store"
	"github.com/lazypower/matchmaker/internal/store/postgres"
)

// openBackend opens the configured store driver. The returned description
// names the database for log output without exposing credentials.
func openBackend(ctx context.Context, cfg config.Config) (store.Backend, string, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		pg.Timeout = cfg.Database.Timeout
		return pg, "postgres", nil

	case "sqlite", "":
		path := cfg.Database.Path
		if path == "" {
			var err error
			path, err = store.DefaultDBPath()
			if err != nil {
				return nil, "", fmt.Errorf("resolve db path: %w", err)
			}
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open database: %w", err)
		}
		db.Timeout = cfg.Database.Timeout
		return db, "sqlite:" + path, nil

	default:
		return nil, "", fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// openStore loads config and opens the backend for one-shot commands.
func openStore(ctx context.Context) (store.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	backend, _, err := openBackend(ctx, cfg)
	return backend, err
}
