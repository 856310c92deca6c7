package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/referra/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query struct {
		Action  string `form:"action"`
		RunID   string `form:"run_id"`
		StartAt string `form:"start_at"`
		EndAt   string `form:"end_at"`
		Limit   int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	startAt, err := parseTimeParam(query.StartAt)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	endAt, err := parseTimeParam(query.EndAt)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entries, err := s.auditSvc.List(c.Request.Context(), tenantFromContext(c), auditdomain.ListAuditLogRequest{
		Action:  strings.TrimSpace(query.Action),
		RunID:   strings.TrimSpace(query.RunID),
		StartAt: startAt,
		EndAt:   endAt,
		Limit:   query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"audit_logs": entries}})
}

func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
