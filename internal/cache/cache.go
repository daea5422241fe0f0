// Package cache wraps the shared Redis instance behind the pipeline's
// graceful-degradation contract: when Redis is unavailable the circuit opens,
// writes report "not cached", reads report "not found", and the caller is
// never failed.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// Client is the pipeline's key/value cache. All operations carry a per-call
// deadline and short-circuit through a circuit breaker when Redis is down.
type Client struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  zerolog.Logger
}

// Options configures a cache Client.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Timeout is the per-call deadline applied to every operation.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// New builds a cache Client. The connection is established lazily; an
// unreachable Redis yields degraded operations, not a construction error.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	logger := opts.Logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "redis",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("cache circuit breaker state change")
		},
	})

	return &Client{
		rdb:     rdb,
		breaker: breaker,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// execute runs op through the breaker with the per-call deadline applied.
func (c *Client) execute(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	v, err := c.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return op(opCtx)
	})
	if err != nil {
		metrics.CacheDegraded.Inc()
	}
	return v, err
}

// Set stores value under key with the given TTL. It reports whether the value
// was actually cached; failures degrade to false.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, c.rdb.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set degraded")
		return false
	}
	return true
}

// Get returns the value for key and whether it was found. Unavailability and
// missing keys both report not-found.
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	type result struct {
		val   string
		found bool
	}
	v, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		val, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return result{}, nil
		}
		if err != nil {
			return result{}, err
		}
		return result{val: val, found: true}, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get degraded")
		return "", false
	}
	r := v.(result)
	return r.val, r.found
}

// Delete removes key and reports whether the removal is known to have
// happened. A false return means the entry may still exist.
func (c *Client) Delete(ctx context.Context, key string) bool {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, c.rdb.Del(ctx, key).Err()
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete degraded")
		return false
	}
	return true
}

// Expire resets the TTL on key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, c.rdb.Expire(ctx, key, ttl).Err()
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache expire degraded")
		return false
	}
	return true
}

// Scan returns every key matching pattern. Unavailability degrades to an
// empty result.
func (c *Client) Scan(ctx context.Context, pattern string) []string {
	v, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		var keys []string
		iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return keys, iter.Err()
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("pattern", pattern).Msg("cache scan degraded")
		return nil
	}
	keys, _ := v.([]string)
	return keys
}

// HSetFloats writes a float-valued hash under key and applies ttl. Used for
// windowed aggregate statistics.
func (c *Client) HSetFloats(ctx context.Context, key string, fields map[string]float64, ttl time.Duration) bool {
	_, err := c.execute(ctx, func(ctx context.Context) (any, error) {
		values := make(map[string]any, len(fields))
		for k, f := range fields {
			values[k] = f
		}
		if err := c.rdb.HSet(ctx, key, values).Err(); err != nil {
			return nil, err
		}
		return nil, c.rdb.Expire(ctx, key, ttl).Err()
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache hset degraded")
		return false
	}
	return true
}
