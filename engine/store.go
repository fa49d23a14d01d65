package engine

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alimaamoun/DM-Agent/config"
	"github.com/alimaamoun/DM-Agent/store"
	"github.com/alimaamoun/DM-Agent/store/memory"
	"github.com/alimaamoun/DM-Agent/store/postgres"
	"github.com/alimaamoun/DM-Agent/store/redis"
)

// openStore opens the configured backend. The returned closer releases the
// connection.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		s := memory.New()
		return s, func(context.Context) error { return s.Close() }, nil

	case config.BackendRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dmagent/engine: redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		redisOpts := []redis.Option{redis.WithLogger(logger)}
		if cfg.RedisPrefix != "" {
			redisOpts = append(redisOpts, redis.WithPrefix(cfg.RedisPrefix))
		}
		s := redis.New(client, redisOpts...)
		return s, func(context.Context) error { return client.Close() }, nil

	case config.BackendPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("dmagent/engine: unknown store backend %q", cfg.Backend)
	}
}
