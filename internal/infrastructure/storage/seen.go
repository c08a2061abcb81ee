package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/ports"
)

// OpenSeenStore builds the backend selected in cfg. The memory backend returns
// nil: the record stream alone is the durable dedup log.
func OpenSeenStore(ctx context.Context, cfg config.SeenConfig, logger zerolog.Logger) (ports.SeenStore, error) {
	var (
		store ports.SeenStore
		err   error
	)
	switch cfg.Backend {
	case "", "memory":
		return nil, nil
	case "badger":
		var s *BadgerSeenStore
		if s, err = OpenBadgerSeenStore(cfg.BadgerPath, logger); err == nil {
			store = s
		}
	case "postgres":
		var s *PostgresSeenStore
		if s, err = OpenPostgresSeenStore(ctx, cfg.PostgresDSN); err == nil {
			store = s
		}
	case "redis":
		var s *RedisSeenStore
		if s, err = OpenRedisSeenStore(ctx, cfg.RedisURL, cfg.RedisKey); err == nil {
			store = s
		}
	default:
		err = fmt.Errorf("unknown seen store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
