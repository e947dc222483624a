package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/upkeep/internal/auth/domain"
	"github.com/smallbiznis/upkeep/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Create(ctx context.Context, admin *domain.Admin) error {
	err := r.db.WithContext(ctx).Create(admin).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrAdminExists
	}
	return err
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	var admin domain.Admin
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Admin, error) {
	var admin domain.Admin
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *repo) RecordFailure(ctx context.Context, id snowflake.ID, attempts int, lockedUntil *time.Time, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_attempts": attempts,
			"locked_until":    lockedUntil,
			"updated_at":      at,
		}).Error
}

func (r *repo) RecordLogin(ctx context.Context, id snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
			"last_login_at":   at,
			"updated_at":      at,
		}).Error
}
