package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Tier is a named bracket defining a partner's commission rate and the
// maximum earning depth that tier is entitled to be paid for. Tiers are
// administratively managed and rarely change; the engine reads a partner's
// effective rate and depth ceiling from their tier at calculation time.
type Tier struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID              snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_tiers_tenant_code,priority:1" json:"tenant_id"`
	Code                  string          `gorm:"not null;uniqueIndex:ux_tiers_tenant_code,priority:2" json:"code"`
	Name                  string          `gorm:"not null" json:"name"`
	DefaultCommissionRate decimal.Decimal `gorm:"type:decimal(8,4);not null" json:"default_commission_rate"`
	MinCommissionRate     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:0" json:"min_commission_rate"`
	MaxCommissionRate     decimal.Decimal `gorm:"type:decimal(8,4);not null;default:1" json:"max_commission_rate"`
	MaxReferralDepth      int             `gorm:"not null;default:1" json:"max_referral_depth"`
	CreatedAt             time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Tier) TableName() string { return "tiers" }
