// Package domain contains core types for admin authentication.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const RoleSuperAdmin = "super_admin"

// Admin is a dashboard operator account.
type Admin struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Email          string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash   string       `gorm:"type:text;not null" json:"-"`
	FullName       string       `gorm:"type:varchar(255);not null" json:"full_name"`
	Role           string       `gorm:"type:varchar(32);not null" json:"role"`
	IsActive       bool         `gorm:"not null" json:"is_active"`
	FailedAttempts int          `gorm:"not null;default:0" json:"-"`
	LockedUntil    *time.Time   `json:"-"`
	LastLoginAt    *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Admin) TableName() string { return "admins" }

// Locked reports whether the account is inside a lockout window at now.
func (a Admin) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
