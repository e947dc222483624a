package domain

import (
	"errors"

	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
)

var (
	ErrMissingField      = errors.New("missing_field")
	ErrDuplicateKey      = clientdomain.ErrDuplicateKey
	ErrNotFound          = errors.New("not_found")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrValidationFailure = errors.New("validation_failure")
)
