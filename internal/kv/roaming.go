package kv

import (
	"context"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRoamingMaxValueBytes is the per-value ceiling of the roaming tier.
const DefaultRoamingMaxValueBytes = 32 * 1024

// redisClient is the subset of *redis.Client the roaming tier uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Roaming is the legacy settings tier: values are synchronized through a
// shared Redis server, so other devices of the same profile see them, possibly
// late. Like the settings store it models, it silently drops values larger
// than its ceiling; callers must read back to detect that.
type Roaming struct {
	client   redisClient
	maxBytes int
	log      zerolog.Logger
}

// NewRoaming connects to the Redis server at url (redis://...).
func NewRoaming(url string, maxBytes int, log zerolog.Logger) (*Roaming, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRoamingWithClient(redis.NewClient(opts), maxBytes, log), nil
}

// NewRoamingWithClient builds the tier on an existing client.
func NewRoamingWithClient(client redisClient, maxBytes int, log zerolog.Logger) *Roaming {
	if maxBytes <= 0 {
		maxBytes = DefaultRoamingMaxValueBytes
	}
	return &Roaming{
		client:   client,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "kv_roaming").Logger(),
	}
}

func (r *Roaming) Name() string { return "roaming" }

func (r *Roaming) MaxValueBytes() int { return r.maxBytes }

func (r *Roaming) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Roaming) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Roaming) Set(ctx context.Context, key, value string) error {
	if len(value) > r.maxBytes {
		r.log.Warn().
			Str("key", key).
			Int("bytes", len(value)).
			Int("max_bytes", r.maxBytes).
			Msg("value over ceiling dropped")
		return nil
	}
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *Roaming) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close closes the underlying client when it supports it.
func (r *Roaming) Close() error {
	if c, ok := r.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
