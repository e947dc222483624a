package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusDue       Status = "due"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusDue, StatusSuspended:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPending PaymentStatus = "pending"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusUnpaid, PaymentStatusPending:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodBankTransfer, PaymentMethodCheck:
		return true
	default:
		return false
	}
}

const DefaultMessage = "Welcome"

// ClientRecord is the maintenance and billing state of one tenant.
type ClientRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ClientCode      string         `gorm:"column:client_code;type:varchar(128);not null;uniqueIndex" json:"client_id"`
	Status          Status         `gorm:"type:varchar(16);not null;index:idx_clients_status_next_billing" json:"status"`
	PaymentStatus   PaymentStatus  `gorm:"type:varchar(16);not null" json:"payment_status"`
	Message         string         `gorm:"type:text;not null" json:"message"`
	LastPaidDate    *time.Time     `json:"last_paid_date"`
	NextBillingDate *time.Time     `gorm:"index:idx_clients_status_next_billing" json:"next_billing_date"`
	BillingHistory  []PaymentEntry `gorm:"-" json:"billing_history"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (ClientRecord) TableName() string { return "clients" }

// PaymentEntry is one immutable billing history line.
type PaymentEntry struct {
	ID            snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ClientID      snowflake.ID    `gorm:"not null;index" json:"-"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Method        PaymentMethod   `gorm:"type:varchar(32);not null" json:"method"`
	TransactionID *string         `gorm:"type:varchar(255)" json:"transaction_id,omitempty"`
	Notes         string          `gorm:"type:text;not null" json:"notes"`
}

func (PaymentEntry) TableName() string { return "client_payments" }

// NormalizeCode is applied to every client code before it is stored or looked up.
func NormalizeCode(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
