package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Summary struct {
	TotalClients     int64           `json:"total_clients"`
	ActiveClients    int64           `json:"active_clients"`
	DueClients       int64           `json:"due_clients"`
	SuspendedClients int64           `json:"suspended_clients"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	HealthPercentage int64           `json:"health_percentage"`
}

type StatusBreakdown struct {
	Active    int64 `json:"active"`
	Due       int64 `json:"due"`
	Suspended int64 `json:"suspended"`
}

type Service interface {
	Summary(ctx context.Context) (Summary, error)
	StatusBreakdown(ctx context.Context) (StatusBreakdown, error)
}
