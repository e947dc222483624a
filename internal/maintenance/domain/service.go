package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/pkg/db/pagination"
)

type CreateClientRequest struct {
	ClientCode      string     `json:"client_id"`
	Message         *string    `json:"message"`
	NextBillingDate *time.Time `json:"next_billing_date"`
}

// EditFieldsRequest is the lenient admin edit. Unknown status values are dropped.
type EditFieldsRequest struct {
	Status          *string    `json:"status"`
	PaymentStatus   *string    `json:"payment_status"`
	Message         *string    `json:"message"`
	NextBillingDate *time.Time `json:"next_billing_date"`
	LastPaidDate    *time.Time `json:"last_paid_date"`
}

// UpdateMaintenanceRequest is the strict edit: a present status must be valid.
type UpdateMaintenanceRequest struct {
	Status  *string `json:"status"`
	Message *string `json:"message"`
}

type RecordPaymentRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	Method          string           `json:"method"`
	TransactionID   *string          `json:"transaction_id"`
	Notes           string           `json:"notes"`
	NextBillingDate *time.Time       `json:"next_billing_date"`
}

type SuspendRequest struct {
	Message *string `json:"message"`
}

type ListClientsRequest struct {
	pagination.Page
	Status string `form:"status"`
	Search string `form:"search"`
}

type ListClientsResponse struct {
	Clients    []clientdomain.ClientRecord `json:"data"`
	Pagination pagination.PageMeta         `json:"pagination"`
}

// PublicStatus is the unauthenticated view of a tenant.
type PublicStatus struct {
	Status          clientdomain.Status        `json:"status"`
	Message         string                     `json:"message"`
	PaymentStatus   clientdomain.PaymentStatus `json:"payment_status"`
	NextBillingDate *time.Time                 `json:"next_billing_date"`
}

// DefaultPublicStatus is served for codes that match no client.
func DefaultPublicStatus() PublicStatus {
	return PublicStatus{
		Status:        clientdomain.StatusActive,
		Message:       "",
		PaymentStatus: clientdomain.PaymentStatusPaid,
	}
}

func PublicStatusOf(record *clientdomain.ClientRecord) PublicStatus {
	return PublicStatus{
		Status:          record.Status,
		Message:         record.Message,
		PaymentStatus:   record.PaymentStatus,
		NextBillingDate: record.NextBillingDate,
	}
}

type Service interface {
	Create(ctx context.Context, req CreateClientRequest) (*clientdomain.ClientRecord, error)
	List(ctx context.Context, req ListClientsRequest) (ListClientsResponse, error)
	Lookup(ctx context.Context, identifier string) (*clientdomain.ClientRecord, error)
	EditFields(ctx context.Context, identifier string, req EditFieldsRequest) (*clientdomain.ClientRecord, error)
	UpdateMaintenance(ctx context.Context, identifier string, req UpdateMaintenanceRequest) (*clientdomain.ClientRecord, error)
	RecordPayment(ctx context.Context, identifier string, req RecordPaymentRequest) (*clientdomain.ClientRecord, error)
	Suspend(ctx context.Context, identifier string, req SuspendRequest) (*clientdomain.ClientRecord, error)
	Activate(ctx context.Context, identifier string) (*clientdomain.ClientRecord, error)
	PublicStatus(ctx context.Context, clientCode string) (PublicStatus, error)

	GetPayment(ctx context.Context, identifier string, paymentID snowflake.ID) (*clientdomain.ClientRecord, *clientdomain.PaymentEntry, error)
	// MarkOverdue moves active clients past their billing date to due.
	MarkOverdue(ctx context.Context, limit int) ([]*clientdomain.ClientRecord, error)
}

// StatusCache holds PublicStatus values keyed by normalized client code.
// Get reports a generation that Set must echo back; Set is a no-op once
// Invalidate has moved the code past that generation.
type StatusCache interface {
	Get(ctx context.Context, clientCode string) (*PublicStatus, int64, error)
	Set(ctx context.Context, clientCode string, status PublicStatus, generation int64) error
	Invalidate(ctx context.Context, clientCodes ...string) error
}
