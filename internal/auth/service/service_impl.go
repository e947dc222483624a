package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/internal/auth/password"
	"github.com/smallbiznis/upkeep/internal/auth/token"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	"github.com/smallbiznis/upkeep/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Issuer  *token.Issuer    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	issuer  *token.Issuer
	metrics *metrics.Metrics
}

func New(p Params) (domain.Service, error) {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	issuer := p.Issuer
	if issuer == nil {
		var err error
		if issuer, err = token.NewIssuer(p.Cfg.AuthJWTSecret, p.Cfg.AuthJWTTTL, clk); err != nil {
			return nil, err
		}
	}
	return &Service{
		log:     p.Log.Named("auth.service"),
		genID:   p.GenID,
		clock:   clk,
		repo:    p.Repo,
		issuer:  issuer,
		metrics: p.Metrics,
	}, nil
}

func (s *Service) SetupAdmin(ctx context.Context, req domain.SetupAdminRequest) (*domain.Admin, error) {
	fullName := strings.TrimSpace(req.FullName)
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || fullName == "" {
		return nil, domain.ErrMissingField
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(req.Password) < password.MinLength {
		return nil, domain.ErrWeakPassword
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrAdminExists
	} else if !errors.Is(err, domain.ErrAdminNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	admin := &domain.Admin{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hashed,
		FullName:     fullName,
		Role:         domain.RoleSuperAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		return nil, err
	}

	s.log.Info("admin account created", zap.String("admin_id", admin.ID.String()))
	return admin, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, domain.ErrMissingField
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		s.metrics.RecordLoginFailure(ctx, "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	admin, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			s.metrics.RecordLoginFailure(ctx, "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !admin.IsActive {
		s.metrics.RecordLoginFailure(ctx, "inactive")
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now()
	if admin.Locked(now) {
		s.metrics.RecordLoginFailure(ctx, "locked")
		return nil, domain.ErrAccountLocked
	}

	if !password.Verify(req.Password, admin.PasswordHash) {
		attempts := admin.FailedAttempts + 1
		if admin.LockedUntil != nil {
			// Previous lock has expired; start a fresh count.
			attempts = 1
		}
		var lockedUntil *time.Time
		if attempts >= maxFailedAttempts {
			until := now.Add(lockoutDuration)
			lockedUntil = &until
			s.log.Warn("admin account locked",
				zap.String("admin_id", admin.ID.String()),
				zap.Int("failed_attempts", attempts),
			)
		}
		if err := s.repo.RecordFailure(ctx, admin.ID, attempts, lockedUntil, now); err != nil {
			return nil, err
		}
		s.metrics.RecordLoginFailure(ctx, "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.repo.RecordLogin(ctx, admin.ID, now); err != nil {
		return nil, err
	}
	admin.FailedAttempts = 0
	admin.LockedUntil = nil
	admin.LastLoginAt = &now

	signed, expiresAt, err := s.issuer.Issue(admin)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{Token: signed, ExpiresAt: expiresAt, Admin: admin}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidToken
	}
	claims, err := s.issuer.Parse(rawToken)
	if err != nil {
		return nil, err
	}

	id, err := snowflake.ParseString(claims.AdminID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	admin, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if !admin.IsActive {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}
