package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/internal/auth/repository"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (authdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.Admin{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, err := New(Params{
		Log:   zap.NewNop(),
		Cfg:   config.Config{AuthJWTSecret: "test-secret", AuthJWTTTL: 24 * time.Hour},
		GenID: node,
		Clock: clk,
		Repo:  repository.New(conn),
	})
	require.NoError(t, err)
	return svc, clk
}

func setupAdmin(t *testing.T, svc authdomain.Service) *authdomain.Admin {
	t.Helper()
	admin, err := svc.SetupAdmin(context.Background(), authdomain.SetupAdminRequest{
		Email:    " Ops@Example.com ",
		Password: "correct-horse",
		FullName: " Ops Admin ",
	})
	require.NoError(t, err)
	return admin
}

func TestSetupAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	admin := setupAdmin(t, svc)
	assert.Equal(t, "ops@example.com", admin.Email)
	assert.Equal(t, "Ops Admin", admin.FullName)
	assert.Equal(t, authdomain.RoleSuperAdmin, admin.Role)
	assert.True(t, admin.IsActive)
	assert.NotEqual(t, "correct-horse", admin.PasswordHash)

	_, err := svc.SetupAdmin(ctx, authdomain.SetupAdminRequest{Email: "ops@example.com", Password: "another1", FullName: "x"})
	assert.ErrorIs(t, err, authdomain.ErrAdminExists)

	_, err = svc.SetupAdmin(ctx, authdomain.SetupAdminRequest{Email: "new@example.com", Password: "12345", FullName: "x"})
	assert.ErrorIs(t, err, authdomain.ErrWeakPassword)

	_, err = svc.SetupAdmin(ctx, authdomain.SetupAdminRequest{Email: "new@example.com", Password: "123456"})
	assert.ErrorIs(t, err, authdomain.ErrMissingField)
}

func TestLoginIssuesToken(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	admin := setupAdmin(t, svc)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "OPS@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, clk.Now().Add(24*time.Hour), result.ExpiresAt)
	require.NotNil(t, result.Admin.LastLoginAt)

	claims, err := svc.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID.String(), claims.AdminID)
	assert.Equal(t, "ops@example.com", claims.Email)

	clk.Advance(25 * time.Hour)
	_, err = svc.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, authdomain.ErrTokenExpired)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	setupAdmin(t, svc)

	_, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com"})
	assert.ErrorIs(t, err, authdomain.ErrMissingField)
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	setupAdmin(t, svc)

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "wrong"})
		require.ErrorIs(t, err, authdomain.ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, authdomain.ErrAccountLocked)

	clk.Advance(14 * time.Minute)
	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, authdomain.ErrAccountLocked)

	clk.Advance(time.Minute)
	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
	_, err = svc.Authenticate(context.Background(), "abc.def.ghi")
	assert.ErrorIs(t, err, authdomain.ErrInvalidToken)
}
