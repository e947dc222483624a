package popup

import (
	"time"

	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
)

type Severity string

const (
	SeverityNone      Severity = "none"
	SeverityPending   Severity = "pending"
	SeverityDue       Severity = "due"
	SeveritySuspended Severity = "suspended"
)

// Rank orders severities; a higher rank wins when several conditions hold.
func (s Severity) Rank() int {
	switch s {
	case SeveritySuspended:
		return 3
	case SeverityDue:
		return 2
	case SeverityPending:
		return 1
	default:
		return 0
	}
}

func (s Severity) Title() string {
	switch s {
	case SeveritySuspended:
		return "Account Suspended"
	case SeverityDue:
		return "Payment Required"
	case SeverityPending:
		return "Payment Pending"
	default:
		return "Important Notice"
	}
}

const FallbackMessage = "Please contact our support team for assistance."

// Notice is what a tenant site should render for a given public status.
type Notice struct {
	Show            bool       `json:"show"`
	Severity        Severity   `json:"severity"`
	Dismissible     bool       `json:"dismissible"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	Status          string     `json:"status"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
}

// Evaluate applies the display rules to a public status. A notice shows when
// the client is not active or has an outstanding payment. Suspended notices
// cannot be dismissed.
func Evaluate(status maintenancedomain.PublicStatus) Notice {
	severity := severityOf(status)
	show := status.Status != clientdomain.StatusActive ||
		status.PaymentStatus == clientdomain.PaymentStatusUnpaid ||
		status.PaymentStatus == clientdomain.PaymentStatusPending

	notice := Notice{
		Show:            show,
		Severity:        severity,
		Dismissible:     severity != SeveritySuspended,
		Title:           severity.Title(),
		Message:         status.Message,
		Status:          string(status.Status),
		NextBillingDate: status.NextBillingDate,
	}
	if notice.Message == "" {
		notice.Message = FallbackMessage
	}
	return notice
}

func severityOf(status maintenancedomain.PublicStatus) Severity {
	switch {
	case status.Status == clientdomain.StatusSuspended:
		return SeveritySuspended
	case status.Status == clientdomain.StatusDue, status.PaymentStatus == clientdomain.PaymentStatusUnpaid:
		return SeverityDue
	case status.PaymentStatus == clientdomain.PaymentStatusPending:
		return SeverityPending
	default:
		return SeverityNone
	}
}
