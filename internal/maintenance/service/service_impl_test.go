package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	clientrepo "github.com/smallbiznis/upkeep/internal/client/repository"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"github.com/smallbiznis/upkeep/internal/maintenance/service"
	"github.com/smallbiznis/upkeep/internal/popup"
	"github.com/smallbiznis/upkeep/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]domain.PublicStatus
	generations map[string]int64
	invalidated []string

	// beforeSet runs between the database read and the cache write.
	beforeSet func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries:     map[string]domain.PublicStatus{},
		generations: map[string]int64{},
	}
}

func (c *memoryCache) Get(_ context.Context, code string) (*domain.PublicStatus, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.entries[code]
	if !ok {
		return nil, c.generations[code], nil
	}
	return &status, c.generations[code], nil
}

func (c *memoryCache) Set(_ context.Context, code string, status domain.PublicStatus, generation int64) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[code] != generation {
		return nil
	}
	c.entries[code] = status
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, codes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		delete(c.entries, code)
		c.generations[code]++
		c.invalidated = append(c.invalidated, code)
	}
	return nil
}

type fixture struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	cache *memoryCache
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&clientdomain.ClientRecord{}, &clientdomain.PaymentEntry{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	cache := newMemoryCache()
	svc := service.New(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  clientrepo.Provide(),
		Cache: cache,
	})
	return fixture{svc: svc, db: conn, clock: clk, cache: cache}
}

func strPtr(s string) *string { return &s }

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateDefaults(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "  ACME-Corp "})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", record.ClientCode)
	assert.Equal(t, clientdomain.StatusActive, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, record.PaymentStatus)
	assert.Equal(t, "Welcome", record.Message)
	assert.NotNil(t, record.BillingHistory)
	assert.Empty(t, record.BillingHistory)
	assert.Nil(t, record.LastPaidDate)

	custom, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "beta", Message: strPtr("Hello")})
	require.NoError(t, err)
	assert.Equal(t, "Hello", custom.Message)
}

func TestCreateRejectsMissingAndDuplicate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "   "})
	assert.ErrorIs(t, err, domain.ErrMissingField)

	_, err = f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: " ACME"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestLookupByIDThenCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "first"})
	require.NoError(t, err)
	// A client whose code spells another client's id.
	shadow, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: first.ID.String()})
	require.NoError(t, err)

	got, err := f.svc.Lookup(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = f.svc.Lookup(ctx, "FIRST")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = f.svc.Lookup(ctx, shadow.ID.String())
	require.NoError(t, err)
	assert.Equal(t, shadow.ID, got.ID)

	_, err = f.svc.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolverReportsMatchKind(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)

	resolver := service.NewResolver(clientrepo.Provide())

	byID, err := resolver.Resolve(ctx, f.db, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ResolvedByID, byID.Kind)

	byCode, err := resolver.Resolve(ctx, f.db, " Acme ")
	require.NoError(t, err)
	assert.Equal(t, domain.ResolvedByCode, byCode.Kind)
	assert.Equal(t, record.ID, byCode.Record.ID)

	missing, err := resolver.Resolve(ctx, f.db, "999")
	require.NoError(t, err)
	assert.Equal(t, domain.ResolvedNotFound, missing.Kind)
	assert.Nil(t, missing.Record)
}

func TestEditFieldsIgnoresInvalidEnums(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)

	record, err := f.svc.EditFields(ctx, "acme", domain.EditFieldsRequest{
		Status:        strPtr("bogus"),
		PaymentStatus: strPtr("nope"),
		Message:       strPtr("Updated"),
	})
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusActive, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, record.PaymentStatus)
	assert.Equal(t, "Updated", record.Message)

	next := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	record, err = f.svc.EditFields(ctx, "acme", domain.EditFieldsRequest{
		Status:          strPtr("due"),
		PaymentStatus:   strPtr("pending"),
		NextBillingDate: &next,
	})
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusDue, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusPending, record.PaymentStatus)
	assert.Equal(t, "Updated", record.Message)
	require.NotNil(t, record.NextBillingDate)
	assert.True(t, record.NextBillingDate.Equal(next))
}

func TestUpdateMaintenanceIsStrict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)

	_, err = f.svc.UpdateMaintenance(ctx, "acme", domain.UpdateMaintenanceRequest{
		Status:  strPtr("bogus"),
		Message: strPtr("should not apply"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	record, err := f.svc.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", record.Message)

	record, err = f.svc.UpdateMaintenance(ctx, "acme", domain.UpdateMaintenanceRequest{
		Status:  strPtr("due"),
		Message: strPtr("Invoice overdue"),
	})
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusDue, record.Status)
	assert.Equal(t, "Invoice overdue", record.Message)

	_, err = f.svc.UpdateMaintenance(ctx, "ghost", domain.UpdateMaintenanceRequest{Status: strPtr("due")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)
	_, err = f.svc.Suspend(ctx, "acme", domain.SuspendRequest{})
	require.NoError(t, err)

	paidAt := f.clock.Now()
	next := paidAt.AddDate(0, 1, 0)
	record, err := f.svc.RecordPayment(ctx, created.ID.String(), domain.RecordPaymentRequest{
		Amount:          amount("250.00"),
		TransactionID:   strPtr("txn_1"),
		NextBillingDate: &next,
	})
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusActive, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusPaid, record.PaymentStatus)
	require.NotNil(t, record.LastPaidDate)
	assert.True(t, record.LastPaidDate.Equal(paidAt))
	require.NotNil(t, record.NextBillingDate)
	assert.True(t, record.NextBillingDate.Equal(next))
	require.Len(t, record.BillingHistory, 1)
	assert.Equal(t, clientdomain.PaymentMethodCreditCard, record.BillingHistory[0].Method)
	assert.True(t, record.BillingHistory[0].PaymentDate.Equal(paidAt))

	f.clock.Advance(time.Hour)
	record, err = f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{
		Amount:        amount("10"),
		Method:        "check",
		TransactionID: strPtr("txn_1"),
		Notes:         "second",
	})
	require.NoError(t, err)
	require.Len(t, record.BillingHistory, 2)
	assert.Equal(t, "second", record.BillingHistory[1].Notes)
	assert.True(t, record.NextBillingDate.Equal(next))
}

func TestRecordPaymentValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrMissingField)

	_, err = f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{Amount: amount("0")})
	assert.ErrorIs(t, err, domain.ErrValidationFailure)

	_, err = f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{Amount: amount("-5")})
	assert.ErrorIs(t, err, domain.ErrValidationFailure)

	_, err = f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{Amount: amount("5"), Method: "cash"})
	assert.ErrorIs(t, err, domain.ErrValidationFailure)

	_, err = f.svc.RecordPayment(ctx, "ghost", domain.RecordPaymentRequest{Amount: amount("5")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	record, err := f.svc.Lookup(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, record.BillingHistory)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, record.PaymentStatus)
}

func TestSuspendAndActivate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme", Message: strPtr("Hi")})
	require.NoError(t, err)

	record, err := f.svc.Suspend(ctx, "acme", domain.SuspendRequest{})
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusSuspended, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, record.PaymentStatus)
	assert.Equal(t, "Hi", record.Message)

	record, err = f.svc.Suspend(ctx, "acme", domain.SuspendRequest{Message: strPtr("Paused")})
	require.NoError(t, err)
	assert.Equal(t, "Paused", record.Message)

	record, err = f.svc.Activate(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusActive, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusPaid, record.PaymentStatus)
	assert.Empty(t, record.BillingHistory)
	assert.Nil(t, record.LastPaidDate)
}

func TestSuspendAfterPaymentForcesUnpaid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)
	paid, err := f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{Amount: amount("50")})
	require.NoError(t, err)
	require.Equal(t, clientdomain.PaymentStatusPaid, paid.PaymentStatus)

	record, err := f.svc.Suspend(ctx, "acme", domain.SuspendRequest{})
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusSuspended, record.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, record.PaymentStatus)
	assert.Len(t, record.BillingHistory, 1)

	status, err := f.svc.PublicStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusSuspended, status.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, status.PaymentStatus)
	assert.Equal(t, "Welcome", status.Message)

	notice := popup.Evaluate(status)
	assert.True(t, notice.Show)
	assert.False(t, notice.Dismissible)
	assert.Equal(t, popup.SeveritySuspended, notice.Severity)
}

func TestPublicStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	unknown, err := f.svc.PublicStatus(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPublicStatus(), unknown)
	assert.Empty(t, f.cache.entries)

	_, err = f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)
	_, err = f.svc.Suspend(ctx, "acme", domain.SuspendRequest{Message: strPtr("Pay up")})
	require.NoError(t, err)

	status, err := f.svc.PublicStatus(ctx, " ACME ")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusSuspended, status.Status)
	assert.Equal(t, "Pay up", status.Message)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, status.PaymentStatus)
	assert.Contains(t, f.cache.entries, "acme")

	_, err = f.svc.Activate(ctx, "acme")
	require.NoError(t, err)
	assert.NotContains(t, f.cache.entries, "acme")

	status, err = f.svc.PublicStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusActive, status.Status)
	assert.Equal(t, clientdomain.PaymentStatusPaid, status.PaymentStatus)
}

func TestPublicStatusDropsWriteRacingMutation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)

	f.cache.beforeSet = func() {
		_, err := f.svc.Suspend(ctx, "acme", domain.SuspendRequest{})
		require.NoError(t, err)
	}
	stale, err := f.svc.PublicStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusActive, stale.Status)
	assert.NotContains(t, f.cache.entries, "acme")

	fresh, err := f.svc.PublicStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusSuspended, fresh.Status)
	assert.Equal(t, fresh, f.cache.entries["acme"])
}

func TestPublicStatusIgnoresRecordIDs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	record, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)
	_, err = f.svc.Suspend(ctx, "acme", domain.SuspendRequest{})
	require.NoError(t, err)

	status, err := f.svc.PublicStatus(ctx, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPublicStatus(), status)
}

func TestListClients(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, code := range []string{"alpha", "beta", "gamma"} {
		_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: code})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	_, err := f.svc.Suspend(ctx, "beta", domain.SuspendRequest{})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, "gamma", domain.RecordPaymentRequest{Amount: amount("5")})
	require.NoError(t, err)

	resp, err := f.svc.List(ctx, domain.ListClientsRequest{Page: pagination.Page{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.Pages)
	require.Len(t, resp.Clients, 2)
	assert.Equal(t, "gamma", resp.Clients[0].ClientCode)
	assert.Len(t, resp.Clients[0].BillingHistory, 1)

	resp, err = f.svc.List(ctx, domain.ListClientsRequest{Status: "suspended"})
	require.NoError(t, err)
	require.Len(t, resp.Clients, 1)
	assert.Equal(t, "beta", resp.Clients[0].ClientCode)

	resp, err = f.svc.List(ctx, domain.ListClientsRequest{Status: "whatever", Search: "A"})
	require.NoError(t, err)
	assert.Len(t, resp.Clients, 3)
}

func TestMarkOverdue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	past := f.clock.Now().AddDate(0, 0, -1)
	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "late", NextBillingDate: &past})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "fine"})
	require.NoError(t, err)

	f.cache.invalidated = nil
	records, err := f.svc.MarkOverdue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "late", records[0].ClientCode)
	assert.Equal(t, []string{"late"}, f.cache.invalidated)

	late, err := f.svc.Lookup(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, clientdomain.StatusDue, late.Status)
	assert.Equal(t, clientdomain.PaymentStatusUnpaid, late.PaymentStatus)
}

func TestGetPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateClientRequest{ClientCode: "acme"})
	require.NoError(t, err)
	record, err := f.svc.RecordPayment(ctx, "acme", domain.RecordPaymentRequest{Amount: amount("42.50")})
	require.NoError(t, err)

	owner, entry, err := f.svc.GetPayment(ctx, "acme", record.BillingHistory[0].ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, owner.ID)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("42.5")))

	_, _, err = f.svc.GetPayment(ctx, "acme", 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
