package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/aurum/internal/observability/metrics"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a Locker shared by every replica pointed at the same redis.
type RedisLocker struct {
	client    redis.UniversalClient
	script    *redis.Script
	log       *zap.Logger
	prefix    string
	ttl       time.Duration
	pollDelay time.Duration
}

func NewRedisLocker(client redis.UniversalClient, log *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client:    client,
		script:    redis.NewScript(lockReleaseScript),
		log:       log.Named("ledger.lock"),
		prefix:    "aurum:ledger:lock:",
		ttl:       10 * time.Second,
		pollDelay: 20 * time.Millisecond,
	}
}

func (l *RedisLocker) Backend() string { return metrics.LockBackendRedis }

// TryLock attempts a single SetNX and returns the owner token on success.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// Acquire polls until the lock is taken or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := l.Release(releaseCtx, key, token); err != nil {
					l.log.Warn("release ledger lock failed", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		timer := time.NewTimer(l.pollDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}
}
