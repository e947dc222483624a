package seed

import (
	"context"

	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(registerBootstrap),
)

func registerBootstrap(lc fx.Lifecycle, cfg config.Config, svc authdomain.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return EnsureAdmin(ctx, svc, cfg.BootstrapAdmin, log.Named("seed"))
		},
	})
}
