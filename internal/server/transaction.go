package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/referra/internal/commission/domain"
)

type transactionEventRequest struct {
	TransactionID   string         `json:"transaction_id"`
	SourcePartnerID string         `json:"source_partner_id"`
	Amount          string         `json:"amount"`
	Currency        string         `json:"currency"`
	Type            string         `json:"type"`
	OccurredAt      string         `json:"occurred_at"`
	Metadata        map[string]any `json:"metadata"`
}

// ProcessTransaction ingests one transaction event and runs the commission
// engine. Delivery is at-least-once: replays of the same transaction id are
// safe and report records as already present.
func (s *Server) ProcessTransaction(c *gin.Context) {
	var req transactionEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sourceID, err := snowflake.ParseString(strings.TrimSpace(req.SourcePartnerID))
	if err != nil {
		AbortWithError(c, commissiondomain.ErrUnknownSourcePartner)
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		AbortWithError(c, commissiondomain.ErrInvalidAmount)
		return
	}

	occurredAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		occurredAt = parsed.UTC()
	}

	event := commissiondomain.TransactionEvent{
		TransactionID:   strings.TrimSpace(req.TransactionID),
		SourcePartnerID: sourceID,
		Amount:          amount,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		Type:            commissiondomain.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		OccurredAt:      occurredAt,
		Metadata:        req.Metadata,
	}

	result, err := s.commissionSvc.Process(c.Request.Context(), tenantFromContext(c), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
