package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"github.com/smallbiznis/upkeep/internal/providers/pdf"
	"github.com/smallbiznis/upkeep/pkg/db/pagination"
)

const receiptDateLayout = "2006-01-02"

func (s *Server) ListClients(c *gin.Context) {
	// Unparseable page/limit fall back to defaults and an unknown status
	// means no status filter.
	req := maintenancedomain.ListClientsRequest{
		Page: pagination.Page{
			Page:  lenientInt(c.Query("page")),
			Limit: lenientInt(c.Query("limit")),
		},
		Status: strings.TrimSpace(c.Query("status")),
		Search: strings.TrimSpace(c.Query("search")),
	}

	resp, err := s.maintenanceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateClient(c *gin.Context) {
	var req maintenancedomain.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.maintenanceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	s.auditClient(c, "client.create", record, map[string]any{
		"client_code": record.ClientCode,
	})

	c.JSON(http.StatusCreated, gin.H{"data": record})
}

func (s *Server) GetClient(c *gin.Context) {
	record, err := s.maintenanceSvc.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) EditClient(c *gin.Context) {
	var req maintenancedomain.EditFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.maintenanceSvc.EditFields(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	s.auditClient(c, "client.update", record, editedFields(req))

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// DownloadReceipt renders one billing history entry as a PDF.
func (s *Server) DownloadReceipt(c *gin.Context) {
	paymentID, err := paymentIDParam(c.Param("paymentId"))
	if err != nil {
		AbortWithError(c, newValidationError("payment_id", "invalid_payment_id", "invalid payment id"))
		return
	}

	record, entry, err := s.maintenanceSvc.GetPayment(c.Request.Context(), c.Param("id"), paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(contextClientKey, record.ClientCode)

	if s.receipts == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	reader, err := s.receipts.GenerateReceipt(c.Request.Context(), s.receiptData(record, entry))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("receipt-%s-%s.pdf", slug.Make(record.ClientCode), entry.ID.String())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func (s *Server) receiptData(record *clientdomain.ClientRecord, entry *clientdomain.PaymentEntry) pdf.ReceiptData {
	data := pdf.ReceiptData{
		Issuer:        s.cfg.AppName,
		ReceiptNumber: entry.ID.String(),
		ClientCode:    record.ClientCode,
		DatePaid:      entry.PaymentDate.UTC().Format(receiptDateLayout),
		Method:        string(entry.Method),
		Notes:         entry.Notes,
		Amount:        entry.Amount.StringFixed(2),
		IssuedAt:      s.clock.Now().UTC().Format(receiptDateLayout),
	}
	if entry.TransactionID != nil {
		data.TransactionID = *entry.TransactionID
	}
	if record.NextBillingDate != nil {
		data.NextBillingDate = record.NextBillingDate.UTC().Format(receiptDateLayout)
	}
	return data
}

func editedFields(req maintenancedomain.EditFieldsRequest) map[string]any {
	fields := make([]string, 0, 5)
	if req.Status != nil {
		fields = append(fields, "status")
	}
	if req.PaymentStatus != nil {
		fields = append(fields, "payment_status")
	}
	if req.Message != nil {
		fields = append(fields, "message")
	}
	if req.NextBillingDate != nil {
		fields = append(fields, "next_billing_date")
	}
	if req.LastPaidDate != nil {
		fields = append(fields, "last_paid_date")
	}
	return map[string]any{"fields": fields}
}

// auditClient records an admin mutation. Audit failures never fail the request.
func (s *Server) auditClient(c *gin.Context, action string, record *clientdomain.ClientRecord, metadata map[string]any) {
	if s.auditSvc == nil || record == nil {
		return
	}
	targetID := record.ID.String()
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["status"] = string(record.Status)
	metadata["payment_status"] = string(record.PaymentStatus)
	_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, action, "client", &targetID, metadata)
}
