package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectClient      = "client"
	ObjectMaintenance = "maintenance"
	ObjectAnalytics   = "analytics"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionClientView    = "client.view"
	ActionClientCreate  = "client.create"
	ActionClientUpdate  = "client.update"
	ActionClientReceipt = "client.receipt"
	ActionClientMarkDue = "client.mark_due"

	ActionMaintenanceUpdate   = "maintenance.update"
	ActionMaintenanceMarkPaid = "maintenance.mark_paid"
	ActionMaintenanceSuspend  = "maintenance.suspend"
	ActionMaintenanceActivate = "maintenance.activate"

	ActionAnalyticsView = "analytics.view"
	ActionAuditLogView  = "audit_log.view"
)

const (
	ActorSystem = "system"
	actorAdmin  = "admin:"

	roleSystem = "role:system"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// AdminActor formats the casbin subject for an admin id.
func AdminActor(id string) string {
	return actorAdmin + strings.TrimSpace(id)
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// newEnforcer builds a seeded enforcer. A nil adapter keeps policies in memory.
func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}

	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string) (string, string, string, *string, error) {
	if actor == ActorSystem {
		return actor, roleSystem, string(auditdomain.ActorTypeSystem), nil, nil
	}
	if strings.HasPrefix(actor, actorAdmin) {
		adminID, err := snowflake.ParseString(strings.TrimPrefix(actor, actorAdmin))
		if err != nil || adminID == 0 {
			return "", "", string(auditdomain.ActorTypeAdmin), nil, ErrInvalidActor
		}
		adminIDStr := adminID.String()
		role, err := s.roleForAdmin(ctx, adminID)
		if err != nil {
			return actor, "", string(auditdomain.ActorTypeAdmin), &adminIDStr, err
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), string(auditdomain.ActorTypeAdmin), &adminIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForAdmin(ctx context.Context, adminID snowflake.ID) (string, error) {
	var row struct {
		Role     string `gorm:"column:role"`
		IsActive bool   `gorm:"column:is_active"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role, is_active
		 FROM admins
		 WHERE id = ?
		 LIMIT 1`,
		adminID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" || !row.IsActive {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			s.log.Warn("failed to drop stale role link", zap.String("subject", subject), zap.Error(err))
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	s.audit(ctx, "authorization.denied", actorType, actorID, object, action)
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, object string, action string) {
	s.audit(ctx, "authorization.granted", actorType, actorID, object, action)
}

func (s *ServiceImpl) audit(ctx context.Context, event string, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypePublic)
	}
	targetID := object
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, event, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": actorSubject(actorType, actorID),
	}); err != nil {
		s.log.Warn("failed to audit authorization decision", zap.String("event", event), zap.Error(err))
	}
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case string(auditdomain.ActorTypeSystem):
		return ActorSystem
	case string(auditdomain.ActorTypeAdmin):
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return AdminActor(*actorID)
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionMaintenanceSuspend, ActionAuditLogView:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	superAdmin := "role:super_admin"
	policies := [][]string{
		{superAdmin, ObjectClient, ActionClientView},
		{superAdmin, ObjectClient, ActionClientCreate},
		{superAdmin, ObjectClient, ActionClientUpdate},
		{superAdmin, ObjectClient, ActionClientReceipt},
		{superAdmin, ObjectMaintenance, ActionMaintenanceUpdate},
		{superAdmin, ObjectMaintenance, ActionMaintenanceMarkPaid},
		{superAdmin, ObjectMaintenance, ActionMaintenanceSuspend},
		{superAdmin, ObjectMaintenance, ActionMaintenanceActivate},
		{superAdmin, ObjectAnalytics, ActionAnalyticsView},
		{superAdmin, ObjectAuditLog, ActionAuditLogView},

		{roleSystem, ObjectClient, ActionClientMarkDue},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
