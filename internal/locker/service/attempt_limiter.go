package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles identities that keep failing face verification.
// Implementations fail open: an unavailable backend never blocks access.
type AttemptLimiter interface {
	Allow(ctx context.Context, identityID string) bool
	RecordFailure(ctx context.Context, identityID string)
	Reset(ctx context.Context, identityID string)
}

const (
	DefaultMaxFailedAttempts = 5
	DefaultAttemptWindow     = 5 * time.Minute

	attemptKeyPrefix = "facelocker:failed:"
)

// RedisAttemptLimiter counts failures per identity in a Redis key that
// expires window after the first failure. A nil client disables limiting.
type RedisAttemptLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	logger *slog.Logger
}

// NewRedisAttemptLimiter applies the package defaults to non-positive
// maxFailures and window.
func NewRedisAttemptLimiter(client *redis.Client, maxFailures int, window time.Duration, logger *slog.Logger) *RedisAttemptLimiter {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailedAttempts
	}
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisAttemptLimiter{client: client, max: int64(maxFailures), window: window, logger: logger}
}

func (l *RedisAttemptLimiter) key(identityID string) string {
	return attemptKeyPrefix + identityID
}

// Allow reports whether identityID is under the failure limit. Redis errors
// allow the attempt.
func (l *RedisAttemptLimiter) Allow(ctx context.Context, identityID string) bool {
	if l.client == nil {
		return true
	}
	n, err := l.client.Get(ctx, l.key(identityID)).Int64()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		l.logger.Warn("attempt limiter unavailable", "identity_id", identityID, "err", err)
		return true
	}
	return n < l.max
}

// RecordFailure counts one failed attempt, starting the window on the first.
func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, identityID string) {
	if l.client == nil {
		return
	}
	key := l.key(identityID)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("attempt limiter incr failed", "identity_id", identityID, "err", err)
		return
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("attempt limiter expire failed", "identity_id", identityID, "err", err)
		}
	}
}

// Reset clears the failure count after a successful verification.
func (l *RedisAttemptLimiter) Reset(ctx context.Context, identityID string) {
	if l.client == nil {
		return
	}
	if err := l.client.Del(ctx, l.key(identityID)).Err(); err != nil {
		l.logger.Warn("attempt limiter reset failed", "identity_id", identityID, "err", err)
	}
}
