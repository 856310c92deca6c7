package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/referra/internal/commission/domain"
	"github.com/smallbiznis/referra/pkg/db/pagination"
)

func (s *Server) ListCommissions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		TransactionID     string `form:"transaction_id"`
		BeneficiaryID     string `form:"beneficiary_id"`
		CalculationStatus string `form:"calculation_status"`
		PayoutStatus      string `form:"payout_status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var beneficiaryID snowflake.ID
	if raw := strings.TrimSpace(query.BeneficiaryID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		beneficiaryID = id
	}

	resp, err := s.commissionSvc.List(c.Request.Context(), tenantFromContext(c), commissiondomain.ListCommissionRequest{
		Pagination:        query.Pagination,
		TransactionID:     strings.TrimSpace(query.TransactionID),
		BeneficiaryID:     beneficiaryID,
		CalculationStatus: commissiondomain.CalculationStatus(strings.TrimSpace(query.CalculationStatus)),
		PayoutStatus:      commissiondomain.PayoutStatus(strings.TrimSpace(query.PayoutStatus)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCommissionByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.commissionSvc.GetByID(c.Request.Context(), tenantFromContext(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}
