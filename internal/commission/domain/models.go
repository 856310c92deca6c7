package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePayment   TransactionType = "payment"
	TransactionTypeSignup    TransactionType = "signup"
	TransactionTypeRecurring TransactionType = "recurring"
	TransactionTypeBonus     TransactionType = "bonus"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePayment, TransactionTypeSignup, TransactionTypeRecurring, TransactionTypeBonus:
		return true
	}
	return false
}

type CalculationStatus string

const (
	CalculationStatusCalculated CalculationStatus = "calculated"
	CalculationStatusApproved   CalculationStatus = "approved"
	CalculationStatusPaid       CalculationStatus = "paid"
	CalculationStatusCancelled  CalculationStatus = "cancelled"
	CalculationStatusDisputed   CalculationStatus = "disputed"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

// TransactionEvent is the inbound trigger, emitted by the payment
// confirmation collaborator with at-least-once delivery. Immutable; the
// engine never mutates it.
type TransactionEvent struct {
	TransactionID   string
	SourcePartnerID snowflake.ID
	Amount          decimal.Decimal
	Currency        string
	Type            TransactionType
	OccurredAt      time.Time
	Metadata        map[string]any
}

// CommissionRecord is the engine's sole persisted output. The
// (tenant_id, transaction_id, beneficiary_id, levels_from_source) tuple is
// the idempotency key, enforced by a unique index. The engine creates rows
// at most once per key; only downstream payout processes advance statuses.
type CommissionRecord struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_commission_records_idempotency,priority:1" json:"tenant_id"`
	TransactionID     string            `gorm:"not null;uniqueIndex:ux_commission_records_idempotency,priority:2" json:"transaction_id"`
	BeneficiaryID     snowflake.ID      `gorm:"not null;uniqueIndex:ux_commission_records_idempotency,priority:3" json:"beneficiary_id"`
	BeneficiaryCode   string            `gorm:"not null" json:"beneficiary_code"`
	SourceID          snowflake.ID      `gorm:"not null" json:"source_id"`
	SourceCode        string            `gorm:"not null" json:"source_code"`
	LevelsFromSource  int               `gorm:"not null;uniqueIndex:ux_commission_records_idempotency,priority:4" json:"levels_from_source"`
	Rate              decimal.Decimal   `gorm:"type:decimal(8,4);not null" json:"rate"`
	Amount            decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency          string            `gorm:"not null" json:"currency"`
	TierID            snowflake.ID      `gorm:"not null" json:"tier_id"`
	TierName          string            `gorm:"not null" json:"tier_name"`
	TierRate          decimal.Decimal   `gorm:"type:decimal(8,4);not null" json:"tier_rate"`
	CalculationStatus CalculationStatus `gorm:"type:text;not null;default:'calculated'" json:"calculation_status"`
	PayoutStatus      PayoutStatus      `gorm:"type:text;not null;default:'pending'" json:"payout_status"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CommissionRecord) TableName() string { return "commission_records" }

// Result summarizes one engine run for a transaction event.
type Result struct {
	Success               bool            `json:"success"`
	TransactionID         string          `json:"transaction_id"`
	RecordsCreated        int             `json:"records_created"`
	RecordsAlreadyPresent int             `json:"records_already_present"`
	TotalCommissionAmount decimal.Decimal `json:"total_commission_amount"`
	Errors                []string        `json:"errors,omitempty"`
}
