package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/pkg/db/pagination"
)

type ListCommissionRequest struct {
	pagination.Pagination
	TransactionID     string
	BeneficiaryID     snowflake.ID
	CalculationStatus CalculationStatus
	PayoutStatus      PayoutStatus
}

type ListCommissionResponse struct {
	pagination.PageInfo
	Records []CommissionRecord `json:"records"`
}

type Service interface {
	// Process runs the engine for one transaction event. Safe to re-invoke
	// for the same transaction id; a non-nil error means the run failed and
	// no records for the transaction were committed.
	Process(ctx context.Context, tenantID snowflake.ID, event TransactionEvent) (Result, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListCommissionRequest) (ListCommissionResponse, error)
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (CommissionRecord, error)
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidType          = errors.New("invalid_transaction_type")
	ErrUnknownSourcePartner = errors.New("unknown_source_partner")
	ErrCalculationFailed    = errors.New("calculation_failed")
	ErrNotFound             = errors.New("commission_not_found")
)

// RetryableError marks transient persistence failures: the caller retries
// the identical event and idempotency makes the retry safe.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
