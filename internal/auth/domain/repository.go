package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, admin *Admin) error
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Admin, error)
	// RecordFailure stores the failed attempt count and optional lock expiry.
	RecordFailure(ctx context.Context, id snowflake.ID, attempts int, lockedUntil *time.Time, at time.Time) error
	RecordLogin(ctx context.Context, id snowflake.ID, at time.Time) error
}
