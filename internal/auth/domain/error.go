package domain

import "errors"

var (
	ErrMissingField       = errors.New("missing_field")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrAdminExists        = errors.New("admin_exists")
	ErrAdminNotFound      = errors.New("admin_not_found")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrTokenExpired       = errors.New("token_expired")
)
