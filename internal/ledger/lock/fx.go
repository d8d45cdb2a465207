package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/aurum/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger.lock",
	fx.Provide(New),
)

// New picks redis when REDIS_ADDR is configured and the in-process mutex otherwise.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		log.Info("ledger lock backend", zap.String("backend", "memory"))
		return NewKeyedMutex()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("ledger lock backend", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
	return NewRedisLocker(client, log)
}
