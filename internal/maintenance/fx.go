package maintenance

import (
	"github.com/smallbiznis/upkeep/internal/maintenance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("maintenance.service",
	fx.Provide(service.New),
)
