package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/upkeep/internal/audit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var prefixEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return conn.WithContext(ctx).Create(entry).Error
}

// List returns entries newest first. It fetches one row past Limit so the
// caller can tell whether another page exists.
func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := conn.WithContext(ctx).Model(&domain.AuditLog{})
	if exprs := filterExprs(filter); len(exprs) > 0 {
		stmt = stmt.Clauses(clause.Where{Exprs: exprs})
	}

	stmt = stmt.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true})
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var entries []*domain.AuditLog
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func filterExprs(filter domain.ListFilter) []clause.Expression {
	var exprs []clause.Expression
	eq := func(column, value string) {
		if value = strings.TrimSpace(value); value != "" {
			exprs = append(exprs, clause.Eq{Column: clause.Column{Name: column}, Value: value})
		}
	}

	eq("action", filter.Action)
	eq("target_type", filter.TargetType)
	eq("target_id", filter.TargetID)
	eq("actor_type", filter.ActorType)
	eq("actor_id", filter.ActorID)

	if prefix := strings.TrimSpace(filter.ActionPrefix); prefix != "" {
		exprs = append(exprs, clause.Expr{
			SQL:  "action LIKE ? ESCAPE '!'",
			Vars: []interface{}{prefixEscaper.Replace(prefix) + "%"},
		})
	}
	if filter.StartAt != nil {
		exprs = append(exprs, clause.Gte{Column: clause.Column{Name: "created_at"}, Value: filter.StartAt.UTC()})
	}
	if filter.EndAt != nil {
		exprs = append(exprs, clause.Lte{Column: clause.Column{Name: "created_at"}, Value: filter.EndAt.UTC()})
	}
	if c := filter.Cursor; c != nil {
		createdAt := clause.Column{Name: "created_at"}
		exprs = append(exprs, clause.Or(
			clause.Lt{Column: createdAt, Value: c.CreatedAt},
			clause.And(
				clause.Eq{Column: createdAt, Value: c.CreatedAt},
				clause.Lt{Column: clause.Column{Name: "id"}, Value: c.ID},
			),
		))
	}
	return exprs
}
