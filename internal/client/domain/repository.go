package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrDuplicateKey = errors.New("duplicate_key")

type ListFilter struct {
	Status *Status
	Search string
	Offset int
	Limit  int
}

// Repository is the client record store. Lookups return nil, nil when the
// record does not exist. Codes are compared verbatim; callers normalize.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ClientRecord, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*ClientRecord, error)
	Insert(ctx context.Context, db *gorm.DB, record *ClientRecord) error
	Save(ctx context.Context, db *gorm.DB, record *ClientRecord) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ClientRecord, int64, error)

	AppendPayment(ctx context.Context, db *gorm.DB, entry *PaymentEntry) error
	ListPayments(ctx context.Context, db *gorm.DB, clientIDs ...snowflake.ID) ([]PaymentEntry, error)
	FindPayment(ctx context.Context, db *gorm.DB, clientID, paymentID snowflake.ID) (*PaymentEntry, error)

	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)
	SumPayments(ctx context.Context, db *gorm.DB) (decimal.Decimal, error)

	// MarkOverdue flips up to limit active clients whose next billing date is
	// before now to due and returns the records as they are after the change.
	MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*ClientRecord, error)
}
