package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"gorm.io/gorm"
)

// Resolver maps an admin identifier to a client record. The identifier is
// tried as a record id first, then as a client code.
type Resolver struct {
	repo clientdomain.Repository
}

func NewResolver(repo clientdomain.Repository) Resolver {
	return Resolver{repo: repo}
}

func (r Resolver) Resolve(ctx context.Context, db *gorm.DB, identifier string) (domain.ResolveResult, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return domain.ResolveResult{Kind: domain.ResolvedNotFound}, nil
	}

	if id, err := snowflake.ParseString(trimmed); err == nil && id > 0 {
		record, err := r.repo.FindByID(ctx, db, id)
		if err != nil {
			return domain.ResolveResult{}, err
		}
		if record != nil {
			return domain.ResolveResult{Kind: domain.ResolvedByID, Record: record}, nil
		}
	}

	code := clientdomain.NormalizeCode(trimmed)
	record, err := r.repo.FindByCode(ctx, db, code)
	if err != nil {
		return domain.ResolveResult{}, err
	}
	if record == nil {
		return domain.ResolveResult{Kind: domain.ResolvedNotFound}, nil
	}
	return domain.ResolveResult{Kind: domain.ResolvedByCode, Record: record}, nil
}
