package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/internal/client/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	repo clientdomain.Repository
	svc  *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&clientdomain.ClientRecord{}, &clientdomain.PaymentEntry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide()
	svc := NewService(Params{DB: conn, Log: zap.NewNop(), Repo: repo}).(*Service)
	return fixture{db: conn, node: node, repo: repo, svc: svc}
}

func (f fixture) addClient(t *testing.T, code string, status clientdomain.Status) *clientdomain.ClientRecord {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	record := &clientdomain.ClientRecord{
		ID:            f.node.Generate(),
		ClientCode:    code,
		Status:        status,
		PaymentStatus: clientdomain.PaymentStatusUnpaid,
		Message:       clientdomain.DefaultMessage,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, record))
	return record
}

func TestSummaryEmpty(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalClients)
	assert.Equal(t, int64(0), summary.HealthPercentage)
	assert.True(t, summary.TotalRevenue.IsZero())
}

func TestSummaryCountsAndRevenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acme := f.addClient(t, "acme", clientdomain.StatusActive)
	f.addClient(t, "beta", clientdomain.StatusActive)
	f.addClient(t, "gamma", clientdomain.StatusDue)

	require.NoError(t, f.repo.AppendPayment(ctx, f.db, &clientdomain.PaymentEntry{
		ID:          f.node.Generate(),
		ClientID:    acme.ID,
		PaymentDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("100.25"),
		Method:      clientdomain.PaymentMethodCheck,
	}))
	require.NoError(t, f.repo.AppendPayment(ctx, f.db, &clientdomain.PaymentEntry{
		ID:          f.node.Generate(),
		ClientID:    acme.ID,
		PaymentDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("49.75"),
		Method:      clientdomain.PaymentMethodCreditCard,
	}))

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalClients)
	assert.Equal(t, int64(2), summary.ActiveClients)
	assert.Equal(t, int64(1), summary.DueClients)
	assert.Equal(t, int64(0), summary.SuspendedClients)
	assert.Equal(t, int64(67), summary.HealthPercentage)
	assert.True(t, decimal.NewFromInt(150).Equal(summary.TotalRevenue), summary.TotalRevenue.String())
}

func TestStatusBreakdown(t *testing.T) {
	f := newFixture(t)
	f.addClient(t, "acme", clientdomain.StatusSuspended)
	f.addClient(t, "beta", clientdomain.StatusDue)
	f.addClient(t, "gamma", clientdomain.StatusDue)

	breakdown, err := f.svc.StatusBreakdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), breakdown.Active)
	assert.Equal(t, int64(2), breakdown.Due)
	assert.Equal(t, int64(1), breakdown.Suspended)
}

func TestHealthPercentageRounding(t *testing.T) {
	assert.Equal(t, int64(0), healthPercentage(0, 0))
	assert.Equal(t, int64(33), healthPercentage(1, 3))
	assert.Equal(t, int64(50), healthPercentage(1, 2))
	assert.Equal(t, int64(100), healthPercentage(4, 4))
}
