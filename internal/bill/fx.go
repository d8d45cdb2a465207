package bill

import (
	"github.com/smallbiznis/aurum/internal/bill/receipt"
	"github.com/smallbiznis/aurum/internal/bill/repository"
	"github.com/smallbiznis/aurum/internal/bill/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bill.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(receipt.New),
)
