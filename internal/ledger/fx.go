package ledger

import (
	"github.com/smallbiznis/aurum/internal/ledger/lock"
	"github.com/smallbiznis/aurum/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	lock.Module,
	fx.Provide(service.NewService),
)
