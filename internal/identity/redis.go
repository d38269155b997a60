package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/id"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0")
	URL string

	// Prefix namespaces the identity hashes. Defaults to "importlink:identity".
	Prefix string

	// ConnectTimeout bounds each connection attempt
	ConnectTimeout time.Duration

	// MaxElapsed bounds the total time spent retrying the initial connection
	MaxElapsed time.Duration
}

// RedisStore keeps one hash per kind, field token, value record id. HSETNX
// gives insert-if-absent in one round trip.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis, retrying with exponential backoff until
// MaxElapsed.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "importlink:identity"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.MaxElapsed == 0 {
		opts.MaxElapsed = 30 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = opts.MaxElapsed
	err = backoff.Retry(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: opts.Prefix}, nil
}

func (s *RedisStore) hashKey(kind domain.Kind) string {
	return s.prefix + ":" + string(kind)
}

func (s *RedisStore) Put(ctx context.Context, kind domain.Kind, origin string, newID int64) (bool, error) {
	if origin == "" {
		return false, ErrEmptyOrigin
	}
	inserted, err := s.client.HSetNX(ctx, s.hashKey(kind), id.Token(string(kind), origin), newID).Result()
	if err != nil {
		return false, fmt.Errorf("stamp %s %q: %w", kind, origin, err)
	}
	return inserted, nil
}

func (s *RedisStore) Get(ctx context.Context, kind domain.Kind, origin string) (int64, error) {
	if origin == "" {
		return 0, ErrNotFound
	}
	val, err := s.client.HGet(ctx, s.hashKey(kind), id.Token(string(kind), origin)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%s %q: %w", kind, origin, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("look up %s %q: %w", kind, origin, err)
	}
	newID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt identity entry for %s %q: %w", kind, origin, err)
	}
	return newID, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
