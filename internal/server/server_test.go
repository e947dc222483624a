package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	analyticsdomain "github.com/smallbiznis/upkeep/internal/analytics/domain"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/internal/authorization"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	clientrepo "github.com/smallbiznis/upkeep/internal/client/repository"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	maintenanceservice "github.com/smallbiznis/upkeep/internal/maintenance/service"
	"github.com/smallbiznis/upkeep/internal/providers/pdf"
	"github.com/smallbiznis/upkeep/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testToken = "admin-token"

type fakeAuthService struct{}

func (fakeAuthService) SetupAdmin(ctx context.Context, req authdomain.SetupAdminRequest) (*authdomain.Admin, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, authdomain.ErrMissingField
	}
	return nil, authdomain.ErrAdminExists
}

func (fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	if req.Password != "correct horse" {
		return nil, authdomain.ErrInvalidCredentials
	}
	return &authdomain.LoginResult{Token: testToken, Admin: &authdomain.Admin{Email: req.Email}}, nil
}

func (fakeAuthService) Authenticate(ctx context.Context, rawToken string) (*authdomain.Claims, error) {
	if rawToken != testToken {
		return nil, authdomain.ErrInvalidToken
	}
	return &authdomain.Claims{AdminID: "42", Email: "ops@example.com", Role: authdomain.RoleSuperAdmin}, nil
}

type fakeAuthz struct {
	denied map[string]bool
}

func (f *fakeAuthz) Authorize(ctx context.Context, actor, object, action string) error {
	if f.denied[action] {
		return authorization.ErrForbidden
	}
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAudit) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func (f *fakeAudit) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

type fakeAnalytics struct{}

func (fakeAnalytics) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	return analyticsdomain.Summary{TotalClients: 1, ActiveClients: 1, TotalRevenue: decimal.Zero, HealthPercentage: 100}, nil
}

func (fakeAnalytics) StatusBreakdown(ctx context.Context) (analyticsdomain.StatusBreakdown, error) {
	return analyticsdomain.StatusBreakdown{Active: 1}, nil
}

type testServer struct {
	router *gin.Engine
	authz  *fakeAuthz
	audit  *fakeAudit
}

func newTestServer(t *testing.T, limits config.PublicStatusConfig) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&clientdomain.ClientRecord{}, &clientdomain.PaymentEntry{}))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	maintenanceSvc := maintenanceservice.New(maintenanceservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  clientrepo.Provide(),
	})

	maintenanceCfg := config.DefaultMaintenanceConfig()
	maintenanceCfg.PublicStatus = limits
	limiter := ratelimit.NewPublicStatusLimiter(nil, config.NewStaticMaintenanceConfigHolder(maintenanceCfg), zap.NewNop())

	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://tenant.example.com"}))
	router.Use(ErrorHandlingMiddleware())

	authz := &fakeAuthz{denied: map[string]bool{}}
	audit := &fakeAudit{}
	NewServer(ServerParams{
		Gin:            router,
		Cfg:            config.Config{AppName: "upkeep"},
		Clock:          clk,
		Authsvc:        fakeAuthService{},
		AuthzSvc:       authz,
		AuditSvc:       audit,
		MaintenanceSvc: maintenanceSvc,
		AnalyticsSvc:   fakeAnalytics{},
		Receipts:       pdf.New(),
		StatusLimiter:  limiter,
	})

	return testServer{router: router, authz: authz, audit: audit}
}

func generousLimits() config.PublicStatusConfig {
	return config.PublicStatusConfig{RatePerSecond: 1000, Burst: 1000}
}

func (ts testServer) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Data
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var payload errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error
}

func TestPublicStatusUnknownClientReturnsDefault(t *testing.T) {
	ts := newTestServer(t, generousLimits())

	resp := ts.do(t, http.MethodGet, "/api/maintenance/status/nobody", "", false)
	require.Equal(t, http.StatusOK, resp.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))
	assert.Equal(t, "active", status["status"])
	assert.Equal(t, "paid", status["payment_status"])
	assert.Equal(t, "", status["message"])
}

func TestAdminRoutesRequireBearerToken(t *testing.T) {
	ts := newTestServer(t, generousLimits())

	resp := ts.do(t, http.MethodGet, "/api/clients", "", false)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", decodeError(t, resp).Type)

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	bad := httptest.NewRecorder()
	ts.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestClientLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, generousLimits())

	created := ts.do(t, http.MethodPost, "/api/clients", `{"client_id":"  AcMe ","next_billing_date":"2026-06-01T00:00:00Z"}`, true)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	record := decodeData(t, created)
	assert.Equal(t, "acme", record["client_id"])
	assert.Equal(t, "Welcome", record["message"])

	dup := ts.do(t, http.MethodPost, "/api/clients", `{"client_id":"ACME"}`, true)
	require.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, "conflict", decodeError(t, dup).Type)

	suspended := ts.do(t, http.MethodPost, "/api/maintenance/acme/suspend", `{"message":"Pay up"}`, true)
	require.Equal(t, http.StatusOK, suspended.Code, suspended.Body.String())
	assert.Equal(t, "suspended", decodeData(t, suspended)["status"])

	public := ts.do(t, http.MethodGet, "/api/maintenance/status/ACME", "", false)
	require.Equal(t, http.StatusOK, public.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(public.Body.Bytes(), &status))
	assert.Equal(t, "suspended", status["status"])
	assert.Equal(t, "Pay up", status["message"])

	activated := ts.do(t, http.MethodPost, "/api/maintenance/acme/activate", "", true)
	require.Equal(t, http.StatusOK, activated.Code)
	assert.Equal(t, "active", decodeData(t, activated)["status"])

	assert.Equal(t, []string{"client.create", "maintenance.suspend", "maintenance.activate"}, ts.audit.recorded())
}

func TestUpdateMaintenanceRejectsInvalidStatus(t *testing.T) {
	ts := newTestServer(t, generousLimits())
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/clients", `{"client_id":"beta"}`, true).Code)

	resp := ts.do(t, http.MethodPut, "/api/maintenance/beta/update-maintenance", `{"status":"paused"}`, true)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "status", payload.Errors[0].Field)
	assert.Equal(t, "invalid_status", payload.Errors[0].Code)

	missing := ts.do(t, http.MethodPut, "/api/maintenance/ghost/update-maintenance", `{"status":"due"}`, true)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestMarkPaidAndDownloadReceipt(t *testing.T) {
	ts := newTestServer(t, generousLimits())
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/clients", `{"client_id":"gamma"}`, true).Code)

	zero := ts.do(t, http.MethodPost, "/api/maintenance/gamma/mark-paid", `{"amount":0,"method":"check"}`, true)
	require.Equal(t, http.StatusBadRequest, zero.Code)

	paid := ts.do(t, http.MethodPost, "/api/maintenance/gamma/mark-paid", `{"amount":"150.00","method":"bank_transfer","transaction_id":"TX-1"}`, true)
	require.Equal(t, http.StatusOK, paid.Code, paid.Body.String())
	record := decodeData(t, paid)
	assert.Equal(t, "paid", record["payment_status"])
	history, ok := record["billing_history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	paymentID := entry["id"]
	require.NotNil(t, paymentID)

	idJSON, err := json.Marshal(paymentID)
	require.NoError(t, err)
	id := strings.Trim(string(idJSON), `"`)

	receipt := ts.do(t, http.MethodGet, "/api/clients/gamma/payments/"+id+"/receipt", "", true)
	require.Equal(t, http.StatusOK, receipt.Code, receipt.Body.String())
	assert.Equal(t, "application/pdf", receipt.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(receipt.Body.Bytes(), []byte("%PDF")))

	bogus := ts.do(t, http.MethodGet, "/api/clients/gamma/payments/not-a-number/receipt", "", true)
	assert.Equal(t, http.StatusBadRequest, bogus.Code)
}

func TestForbiddenActionReturns403(t *testing.T) {
	ts := newTestServer(t, generousLimits())
	ts.authz.denied[authorization.ActionMaintenanceSuspend] = true

	resp := ts.do(t, http.MethodPost, "/api/maintenance/acme/suspend", "", true)
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "forbidden", decodeError(t, resp).Type)
	assert.Empty(t, ts.audit.recorded())
}

func TestPublicStatusRateLimited(t *testing.T) {
	ts := newTestServer(t, config.PublicStatusConfig{RatePerSecond: 0.001, Burst: 1})

	first := ts.do(t, http.MethodGet, "/api/maintenance/status/acme", "", false)
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.do(t, http.MethodGet, "/api/maintenance/status/acme", "", false)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, second).Type)
}

func TestLoginErrors(t *testing.T) {
	ts := newTestServer(t, generousLimits())

	bad := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"ops@example.com","password":"nope"}`, false)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	ok := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"ops@example.com","password":"correct horse"}`, false)
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, testToken, decodeData(t, ok)["token"])

	malformed := ts.do(t, http.MethodPost, "/api/auth/login", `{`, false)
	assert.Equal(t, http.StatusBadRequest, malformed.Code)

	exists := ts.do(t, http.MethodPost, "/api/auth/setup-admin", `{"email":"ops@example.com","password":"long enough pw"}`, false)
	assert.Equal(t, http.StatusConflict, exists.Code)
}

func TestMeAndLogout(t *testing.T) {
	ts := newTestServer(t, generousLimits())

	me := ts.do(t, http.MethodGet, "/api/auth/me", "", true)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "42", decodeData(t, me)["admin_id"])

	out := ts.do(t, http.MethodPost, "/api/auth/logout", "", true)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, []string{"auth.logout"}, ts.audit.recorded())
}

func TestCORSPreflightAndFallback(t *testing.T) {
	ts := newTestServer(t, generousLimits())

	req := httptest.NewRequest(http.MethodOptions, "/api/maintenance/status/acme", nil)
	req.Header.Set("Origin", "https://tenant.example.com")
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "https://tenant.example.com", resp.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest(http.MethodGet, "/api/maintenance/status/acme", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	otherResp := httptest.NewRecorder()
	ts.router.ServeHTTP(otherResp, other)
	assert.Empty(t, otherResp.Header().Get("Access-Control-Allow-Origin"))

	missing := ts.do(t, http.MethodGet, "/nope", "", false)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestMapErrorClassification(t *testing.T) {
	status, payload := mapError(authdomain.ErrAccountLocked)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "account temporarily locked", payload.Message)

	errType, code := classifyErrorForLog(assert.AnError)
	assert.Equal(t, "internal", errType)
	assert.Equal(t, "internal_error", code)
}

func TestListClientsToleratesBadQueryValues(t *testing.T) {
	ts := newTestServer(t, generousLimits())
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/clients", `{"client_id":"acme"}`, true).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/clients", `{"client_id":"beta"}`, true).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/maintenance/beta/suspend", "", true).Code)

	var payload struct {
		Data       []map[string]any `json:"data"`
		Pagination struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
		} `json:"pagination"`
	}

	resp := ts.do(t, http.MethodGet, "/api/clients?status=bogus&page=two&limit=lots", "", true)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Len(t, payload.Data, 2)
	assert.Equal(t, int64(2), payload.Pagination.Total)
	assert.Equal(t, 1, payload.Pagination.Page)
	assert.Equal(t, 10, payload.Pagination.Limit)

	filtered := ts.do(t, http.MethodGet, "/api/clients?status=suspended", "", true)
	require.Equal(t, http.StatusOK, filtered.Code)
	payload.Data = nil
	require.NoError(t, json.Unmarshal(filtered.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, "beta", payload.Data[0]["client_id"])
}
