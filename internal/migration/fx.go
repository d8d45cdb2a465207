package migration

import (
	"context"

	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger, clk clock.Clock) error {
		if err := Apply(conn); err != nil {
			return err
		}
		return seed.EnsureCatalog(context.Background(), conn, clk, log)
	}),
)
