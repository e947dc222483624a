package seed

import (
	"context"
	"errors"
	"strings"

	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/internal/config"
	"go.uber.org/zap"
)

var ErrAuthServiceRequired = errors.New("seed auth service is required")

// EnsureAdmin creates the bootstrap super admin when ADMIN_EMAIL is set.
// An existing account with that email is left untouched.
func EnsureAdmin(ctx context.Context, svc authdomain.Service, cfg config.BootstrapAdminConfig, log *zap.Logger) error {
	if strings.TrimSpace(cfg.Email) == "" {
		return nil
	}
	if svc == nil {
		return ErrAuthServiceRequired
	}

	admin, err := svc.SetupAdmin(ctx, authdomain.SetupAdminRequest{
		Email:    cfg.Email,
		Password: cfg.Password,
		FullName: cfg.FullName,
	})
	switch {
	case errors.Is(err, authdomain.ErrAdminExists):
		log.Debug("bootstrap admin already exists")
		return nil
	case err != nil:
		return err
	}

	log.Info("bootstrap admin created", zap.String("admin_id", admin.ID.String()))
	return nil
}
