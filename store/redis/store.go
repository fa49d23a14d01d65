package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alimaamoun/DM-Agent/job"
	"github.com/alimaamoun/DM-Agent/lease"
)

// Compile-time interface checks.
var (
	_ job.Store   = (*Store)(nil)
	_ lease.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix overrides the key prefix, "dmagent:" by default.
func WithPrefix(p string) Option {
	return func(s *Store) { s.keys = keys{prefix: p} }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client goredis.Cmdable
	keys   keys
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, keys: keys{prefix: defaultPrefix}, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate loads the Lua scripts so the first calls can use EVALSHA.
func (s *Store) Migrate(ctx context.Context) error {
	for _, sc := range []*goredis.Script{createJobScript, updateJobScript, acquireLeaseScript, renewLeaseScript, releaseLeaseScript} {
		if err := sc.Load(ctx, s.client).Err(); err != nil {
			return wrap("load script", err)
		}
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
