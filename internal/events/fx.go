package events

import (
	"context"

	"github.com/smallbiznis/aurum/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher returns a kafka publisher when brokers are configured and a no-op otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
		log.Info("event publishing disabled")
		return NoopPublisher{}
	}

	p := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p
}
