package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
)

func (s *Server) UpdateMaintenance(c *gin.Context) {
	var req maintenancedomain.UpdateMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.maintenanceSvc.UpdateMaintenance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	s.auditClient(c, "maintenance.update", record, nil)

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) MarkPaid(c *gin.Context) {
	var req maintenancedomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.maintenanceSvc.RecordPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	metadata := map[string]any{"method": req.Method}
	if req.Amount != nil {
		metadata["amount"] = req.Amount.StringFixed(2)
	}
	s.auditClient(c, "maintenance.mark_paid", record, metadata)

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) Suspend(c *gin.Context) {
	var req maintenancedomain.SuspendRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	record, err := s.maintenanceSvc.Suspend(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	s.auditClient(c, "maintenance.suspend", record, nil)

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) Activate(c *gin.Context) {
	record, err := s.maintenanceSvc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextClientKey, record.ClientCode)
	s.auditClient(c, "maintenance.activate", record, nil)

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// PublicStatus answers the tenant site's polling request. Unknown codes get
// the default active status rather than not found.
func (s *Server) PublicStatus(c *gin.Context) {
	code := c.Param("client_id")
	c.Set(contextClientKey, code)

	status, err := s.maintenanceSvc.PublicStatus(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, status)
}
