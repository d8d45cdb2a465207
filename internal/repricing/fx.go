package repricing

import (
	"github.com/smallbiznis/aurum/internal/repricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("repricing.service",
	fx.Provide(service.New),
)
