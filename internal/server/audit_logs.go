package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
)

type auditLogQuery struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type" binding:"omitempty,oneof=quote invoice authorization"`
	TargetID   string `form:"target_id"`
}

// ListAuditLogs pages through the active business's audit trail, newest
// first. Admins and accountants only.
func (s *Server) ListAuditLogs(c *gin.Context) {
	ctx := c.Request.Context()
	_, businessID, err := authorization.Require(ctx, s.authzSvc, authorization.ObjectAuditLog, authorization.ActionAuditLogView)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query auditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	query.PageToken = strings.TrimSpace(query.PageToken)

	resp, err := s.auditSvc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: query.Pagination,
		BusinessID: businessID,
		Action:     query.Action,
		TargetType: query.TargetType,
		TargetID:   query.TargetID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
