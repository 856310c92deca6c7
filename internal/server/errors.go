package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/referra/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/referra/internal/commission/domain"
	partnerdomain "github.com/smallbiznis/referra/internal/partner/domain"
	tenantdomain "github.com/smallbiznis/referra/internal/tenant/domain"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrNotFound           = errors.New("not_found")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case commissiondomain.IsRetryable(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "service_unavailable",
			Message:   err.Error(),
			Retryable: true,
		}
	case errors.Is(err, tenantdomain.ErrNotFound),
		errors.Is(err, partnerdomain.ErrNotFound),
		errors.Is(err, tierdomain.ErrNotFound),
		errors.Is(err, commissiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, tierdomain.ErrDuplicateCode),
		errors.Is(err, partnerdomain.ErrDuplicateCode):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{Type: "too_many_requests", Message: err.Error(), Retryable: true}
	case errors.Is(err, commissiondomain.ErrInvalidTenant),
		errors.Is(err, commissiondomain.ErrInvalidTransactionID),
		errors.Is(err, commissiondomain.ErrInvalidAmount),
		errors.Is(err, commissiondomain.ErrInvalidCurrency),
		errors.Is(err, commissiondomain.ErrInvalidType),
		errors.Is(err, commissiondomain.ErrUnknownSourcePartner),
		errors.Is(err, commissiondomain.ErrCalculationFailed),
		errors.Is(err, partnerdomain.ErrInvalidTenant),
		errors.Is(err, partnerdomain.ErrInvalidName),
		errors.Is(err, partnerdomain.ErrInvalidTier),
		errors.Is(err, partnerdomain.ErrSelfSponsor),
		errors.Is(err, partnerdomain.ErrSponsorNotFound),
		errors.Is(err, partnerdomain.ErrNoSponsor),
		errors.Is(err, tierdomain.ErrInvalidTenant),
		errors.Is(err, tierdomain.ErrInvalidCode),
		errors.Is(err, tierdomain.ErrInvalidName),
		errors.Is(err, tierdomain.ErrInvalidRate),
		errors.Is(err, tierdomain.ErrRateOutsideWindow),
		errors.Is(err, tierdomain.ErrInvalidDepth),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusUnprocessableEntity, errorPayload{Type: "invalid_request", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}
