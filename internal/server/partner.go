package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	partnerdomain "github.com/smallbiznis/referra/internal/partner/domain"
	"github.com/smallbiznis/referra/pkg/db/pagination"
)

type enrollPartnerRequest struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	TierID    string         `json:"tier_id"`
	SponsorID string         `json:"sponsor_id"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) EnrollPartner(c *gin.Context) {
	var req enrollPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tierID, err := snowflake.ParseString(strings.TrimSpace(req.TierID))
	if err != nil {
		AbortWithError(c, partnerdomain.ErrInvalidTier)
		return
	}

	var sponsorID *snowflake.ID
	if raw := strings.TrimSpace(req.SponsorID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, partnerdomain.ErrSponsorNotFound)
			return
		}
		sponsorID = &id
	}

	tenantID := tenantFromContext(c)
	partner, err := s.partnerSvc.Enroll(c.Request.Context(), tenantID, partnerdomain.EnrollPartnerRequest{
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		TierID:    tierID,
		SponsorID: sponsorID,
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := partner.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), tenantID, "", "partner.enrolled", "partner", &targetID, map[string]any{
		"code":    partner.Code,
		"tier_id": partner.TierID.String(),
	})

	c.JSON(http.StatusOK, gin.H{"data": partner})
}

func (s *Server) ListPartners(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.partnerSvc.List(c.Request.Context(), tenantFromContext(c), partnerdomain.ListPartnerRequest{
		Pagination: query.Pagination,
		Status:     partnerdomain.PartnerStatus(strings.TrimSpace(query.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPartnerByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	partner, err := s.partnerSvc.GetByID(c.Request.Context(), tenantFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": partner})
}

// SeverPartnerSponsor marks the partner's sponsor edge severed. Downline
// partners keep their own edges; only commissions flowing through this edge
// stop.
func (s *Server) SeverPartnerSponsor(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tenantID := tenantFromContext(c)
	if err := s.partnerSvc.SeverSponsor(c.Request.Context(), tenantID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := id.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), tenantID, "", "partner.sponsor_severed", "partner", &targetID, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"partner_id": targetID, "status": "severed"}})
}
