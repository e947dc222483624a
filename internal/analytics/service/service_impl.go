package service

import (
	"context"
	"math"

	analyticsdomain "github.com/smallbiznis/upkeep/internal/analytics/domain"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo clientdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo clientdomain.Repository
}

func NewService(p Params) analyticsdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("analytics.service"),
		repo: p.Repo,
	}
}

func (s *Service) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	breakdown, err := s.StatusBreakdown(ctx)
	if err != nil {
		return analyticsdomain.Summary{}, err
	}

	revenue, err := s.repo.SumPayments(ctx, s.db)
	if err != nil {
		s.log.Error("failed to sum payments", zap.Error(err))
		return analyticsdomain.Summary{}, err
	}

	total := breakdown.Active + breakdown.Due + breakdown.Suspended
	return analyticsdomain.Summary{
		TotalClients:     total,
		ActiveClients:    breakdown.Active,
		DueClients:       breakdown.Due,
		SuspendedClients: breakdown.Suspended,
		TotalRevenue:     revenue,
		HealthPercentage: healthPercentage(breakdown.Active, total),
	}, nil
}

func (s *Service) StatusBreakdown(ctx context.Context) (analyticsdomain.StatusBreakdown, error) {
	counts, err := s.repo.CountByStatus(ctx, s.db)
	if err != nil {
		s.log.Error("failed to count clients by status", zap.Error(err))
		return analyticsdomain.StatusBreakdown{}, err
	}
	return analyticsdomain.StatusBreakdown{
		Active:    counts[clientdomain.StatusActive],
		Due:       counts[clientdomain.StatusDue],
		Suspended: counts[clientdomain.StatusSuspended],
	}, nil
}

func healthPercentage(active, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return int64(math.Round(float64(active) / float64(total) * 100))
}
