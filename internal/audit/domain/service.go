package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/upkeep/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action string
	// ActionPrefix matches a family of actions such as "maintenance.".
	ActionPrefix string
	TargetType   string
	TargetID     string
	ActorType    string
	ActorID      string
	StartAt      *time.Time
	EndAt        *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type ListFilter struct {
	Action       string
	ActionPrefix string
	TargetType   string
	TargetID     string
	ActorType    string
	ActorID      string
	StartAt      *time.Time
	EndAt        *time.Time
	Cursor       *AuditCursor
	Limit        int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

// Service records who changed what. Empty actorType falls back to the actor
// carried by the context, then to "system".
type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
