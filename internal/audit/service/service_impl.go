package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	"github.com/smallbiznis/upkeep/internal/audit/masking"
	"github.com/smallbiznis/upkeep/internal/clock"
	obscontext "github.com/smallbiznis/upkeep/internal/observability/context"
	"github.com/smallbiznis/upkeep/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
	unknownTarget   = "unknown"
)

// Payment references and credentials never reach the audit table in clear.
var sensitiveKeys = []string{"transaction_id", "password", "token", "authorization"}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	svc := &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}
	return svc
}

func (s *Service) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	entry, err := s.buildEntry(ctx, actorType, actorID, action, targetType, targetID, metadata)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("target_type", entry.TargetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) buildEntry(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) (*auditdomain.AuditLog, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	if targetType = strings.TrimSpace(targetType); targetType == "" {
		targetType = unknownTarget
	}

	kind, who := s.resolveActor(ctx, strings.TrimSpace(actorType), actorID)
	payload := masking.MaskFields(metadata, sensitiveKeys...)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	return &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  kind,
		ActorID:    who,
		Action:     action,
		TargetType: targetType,
		TargetID:   trimmedPtr(targetID),
		Metadata:   datatypes.JSONMap(payload),
		IPAddress:  nonEmptyPtr(obscontext.IPAddressFromContext(ctx)),
		UserAgent:  nonEmptyPtr(obscontext.UserAgentFromContext(ctx)),
		CreatedAt:  s.clock.Now(),
	}, nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := decodePageToken(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	limit := clampPageSize(req.PageSize)

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:       req.Action,
		ActionPrefix: req.ActionPrefix,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		ActorType:    req.ActorType,
		ActorID:      req.ActorID,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		Cursor:       cursor,
		Limit:        limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	var resp auditdomain.ListAuditLogResponse
	if info := pagination.BuildCursorPageInfo(items, int32(limit), encodePageToken); info != nil {
		resp.PageInfo = *info
		if info.HasMore && len(items) > limit {
			items = items[:limit]
		}
	}

	resp.AuditLogs = make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item != nil {
			resp.AuditLogs = append(resp.AuditLogs, *item)
		}
	}
	return resp, nil
}

func clampPageSize(size int) int {
	switch {
	case size <= 0:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}

func decodePageToken(token string) (*auditdomain.AuditCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func encodePageToken(item *auditdomain.AuditLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        item.ID.String(),
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

// resolveActor prefers the explicit actor, then the one stamped on the
// request context by the admin middleware, then "system".
func (s *Service) resolveActor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorType != "" {
		return actorType, trimmedPtr(actorID)
	}
	ctxType, ctxID := obscontext.ActorFromContext(ctx)
	if ctxType == "" {
		return string(auditdomain.ActorTypeSystem), trimmedPtr(actorID)
	}
	if id := trimmedPtr(actorID); id != nil {
		return ctxType, id
	}
	return ctxType, nonEmptyPtr(ctxID)
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	return nonEmptyPtr(*value)
}

func nonEmptyPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
