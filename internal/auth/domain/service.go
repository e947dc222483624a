package domain

import (
	"context"
	"time"
)

type Service interface {
	SetupAdmin(ctx context.Context, req SetupAdminRequest) (*Admin, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*Claims, error)
}

type SetupAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Admin     *Admin    `json:"admin"`
}

// Claims is the authenticated admin carried by a bearer token.
type Claims struct {
	AdminID  string `json:"admin_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}
