package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	"github.com/smallbiznis/upkeep/pkg/db/pagination"
)

type listAuditLogsQuery struct {
	PageToken    string `form:"page_token"`
	PageSize     int    `form:"page_size"`
	Action       string `form:"action"`
	ActionPrefix string `form:"action_prefix"`
	TargetType   string `form:"target_type"`
	TargetID     string `form:"target_id"`
	ClientID     string `form:"client_id"`
	ActorType    string `form:"actor_type"`
	ActorID      string `form:"actor_id"`
	From         string `form:"from"`
	To           string `form:"to"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, err := timeQuery(query.From, rangeStart)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	endAt, err := timeQuery(query.To, rangeEnd)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	targetType := strings.TrimSpace(query.TargetType)
	targetID := strings.TrimSpace(query.TargetID)
	if clientID := strings.TrimSpace(query.ClientID); clientID != "" && targetID == "" {
		record, err := s.maintenanceSvc.Lookup(c.Request.Context(), clientID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		targetType = "client"
		targetID = record.ID.String()
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Action:       strings.TrimSpace(query.Action),
		ActionPrefix: strings.TrimSpace(query.ActionPrefix),
		TargetType:   targetType,
		TargetID:     targetID,
		ActorType:    strings.TrimSpace(query.ActorType),
		ActorID:      strings.TrimSpace(query.ActorID),
		StartAt:      startAt,
		EndAt:        endAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
