package auth

import (
	"github.com/smallbiznis/upkeep/internal/auth/repository"
	"github.com/smallbiznis/upkeep/internal/auth/service"
	"github.com/smallbiznis/upkeep/internal/auth/token"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("auth",
	fx.Provide(
		repository.New,
		NewIssuer,
		service.New,
	),
)

// NewIssuer builds the admin token signer from AUTH_JWT_*.
func NewIssuer(cfg config.Config, clk clock.Clock, log *zap.Logger) (*token.Issuer, error) {
	if cfg.AuthJWTSecret == config.DevJWTSecret {
		log.Warn("auth: signing admin tokens with the development secret; set AUTH_JWT_SECRET",
			zap.String("environment", cfg.Environment),
		)
	}
	return token.NewIssuer(cfg.AuthJWTSecret, cfg.AuthJWTTTL, clk)
}
