// Package lock guards projects against concurrent submissions.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

const keyPrefix = "cgadmin:lock:"

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared between processes through Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisLocker connects to the configured Redis server.
func NewRedisLocker(ctx context.Context, config domain.CacheConfig, logger *logrus.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLockerWithClient(client, config.LockTTL, logger), nil
}

// NewRedisLockerWithClient uses an existing client.
func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Acquire implements domain.Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLocked)
	}

	release := func() {
		// the caller's context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.WithError(err).WithField("lock", key).Warn("Failed to release lock")
		}
	}
	return release, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
