package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
)

type createTierRequest struct {
	Code                  string `json:"code"`
	Name                  string `json:"name"`
	DefaultCommissionRate string `json:"default_commission_rate"`
	MinCommissionRate     string `json:"min_commission_rate"`
	MaxCommissionRate     string `json:"max_commission_rate"`
	MaxReferralDepth      int    `json:"max_referral_depth"`
}

func (s *Server) CreateTier(c *gin.Context) {
	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rate, err := parseRate(req.DefaultCommissionRate)
	if err != nil {
		AbortWithError(c, tierdomain.ErrInvalidRate)
		return
	}
	minRate, err := parseRate(req.MinCommissionRate)
	if err != nil {
		AbortWithError(c, tierdomain.ErrInvalidRate)
		return
	}
	maxRate, err := parseRate(req.MaxCommissionRate)
	if err != nil {
		AbortWithError(c, tierdomain.ErrInvalidRate)
		return
	}

	tenantID := tenantFromContext(c)
	tier, err := s.tierSvc.Create(c.Request.Context(), tenantID, tierdomain.CreateTierRequest{
		Code:                  strings.TrimSpace(req.Code),
		Name:                  strings.TrimSpace(req.Name),
		DefaultCommissionRate: rate,
		MinCommissionRate:     minRate,
		MaxCommissionRate:     maxRate,
		MaxReferralDepth:      req.MaxReferralDepth,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := tier.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), tenantID, "", "tier.created", "tier", &targetID, map[string]any{
		"code": tier.Code,
		"rate": tier.DefaultCommissionRate.String(),
	})

	c.JSON(http.StatusOK, gin.H{"data": tier})
}

func (s *Server) ListTiers(c *gin.Context) {
	tiers, err := s.tierSvc.List(c.Request.Context(), tenantFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"tiers": tiers}})
}

func parseRate(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
