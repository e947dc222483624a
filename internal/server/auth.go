package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
)

func (s *Server) Login(c *gin.Context) {
	var req authdomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// SetupAdmin creates the first admin. Once an admin exists it answers conflict.
func (s *Server) SetupAdmin(c *gin.Context) {
	var req authdomain.SetupAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	admin, err := s.authsvc.SetupAdmin(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": admin})
}

// Logout only records the event. Tokens are stateless and expire on their own.
func (s *Server) Logout(c *gin.Context) {
	claims, ok := adminFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if s.auditSvc != nil {
		adminID := claims.AdminID
		_ = s.auditSvc.AuditLog(c.Request.Context(), string(auditdomain.ActorTypeAdmin), &adminID, "auth.logout", "admin", &adminID, nil)
	}

	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

func (s *Server) Me(c *gin.Context) {
	claims, ok := adminFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": claims})
}
