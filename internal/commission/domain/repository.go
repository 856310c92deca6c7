package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/pkg/db/pagination"
	"gorm.io/gorm"
)

// WriteResult reports the outcome of one idempotent ledger write.
type WriteResult struct {
	RecordID        snowflake.ID
	WasNewlyCreated bool
}

type ListFilter struct {
	TransactionID     string
	BeneficiaryID     snowflake.ID
	CalculationStatus CalculationStatus
	PayoutStatus      PayoutStatus
}

type Repository interface {
	// InsertIdempotent writes one commission record keyed by
	// (tenant, transaction, beneficiary, levels_from_source), exactly once.
	// A key conflict is not an error: the existing record id is returned
	// with WasNewlyCreated=false.
	InsertIdempotent(ctx context.Context, db *gorm.DB, record *CommissionRecord) (WriteResult, error)
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*CommissionRecord, error)
	ListByTransaction(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, transactionID string) ([]*CommissionRecord, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*CommissionRecord, error)
}
