package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
	"github.com/redis/go-redis/v9"
)

const (
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// ResetRequestWindow is the window of the password reset request limit
	ResetRequestWindow = 15 * time.Minute
	// ResetRequestMax is the number of reset requests allowed per IP in the window
	ResetRequestMax = 5
)

// WindowCounter counts hits on key within a fixed window that starts at the
// first hit.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisWindowCounter shares counters between server instances.
type RedisWindowCounter struct {
	client *redis.Client
}

// NewRedisWindowCounter wraps a connected client.
func NewRedisWindowCounter(client *redis.Client) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

func (c *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// WindowRateLimit allows limit requests per client IP within window. When the
// counter is unavailable the request is allowed.
func WindowRateLimit(counter WindowCounter, res clientip.Resolver, name string, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := RateLimitKeyPrefix + name + ":" + res.ClientIP(r)
			count, err := counter.Hit(r.Context(), key, window)
			if err != nil {
				logx.Warnf("rate limit %s: counter unavailable: %v", name, err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, limit-count), 10))
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeJSONError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
