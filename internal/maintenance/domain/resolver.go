package domain

import clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"

type ResolveKind int

const (
	ResolvedNotFound ResolveKind = iota
	ResolvedByID
	ResolvedByCode
)

func (k ResolveKind) String() string {
	switch k {
	case ResolvedByID:
		return "by_id"
	case ResolvedByCode:
		return "by_code"
	default:
		return "not_found"
	}
}

// ResolveResult is the outcome of resolving an admin identifier.
// Record is nil exactly when Kind is ResolvedNotFound.
type ResolveResult struct {
	Kind   ResolveKind
	Record *clientdomain.ClientRecord
}
