package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PartnerStatus string

const (
	PartnerStatusActive     PartnerStatus = "active"
	PartnerStatusInactive   PartnerStatus = "inactive"
	PartnerStatusSuspended  PartnerStatus = "suspended"
	PartnerStatusTerminated PartnerStatus = "terminated"
)

type RelationStatus string

const (
	RelationStatusActive  RelationStatus = "active"
	RelationStatusSevered RelationStatus = "severed"
)

const RelationTypeSponsor = "sponsor"

// Partner is a referring party. The sponsor link is the referral graph edge:
// it is set once at enrollment and may be severed but never redirected.
type Partner struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_partners_tenant_code,priority:1" json:"tenant_id"`
	Code      string            `gorm:"not null;uniqueIndex:ux_partners_tenant_code,priority:2" json:"code"`
	Name      string            `gorm:"not null" json:"name"`
	TierID    snowflake.ID      `gorm:"not null" json:"tier_id"`
	SponsorID *snowflake.ID     `gorm:"index" json:"sponsor_id,omitempty"`
	Status    PartnerStatus     `gorm:"type:text;not null;default:'active'" json:"status"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Partner) TableName() string { return "partners" }

// ReferralRelation is the explicit direct edge (depth 1) written at
// enrollment. Severing marks the edge inactive without deleting history.
type ReferralRelation struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_referral_relations_edge,priority:1" json:"tenant_id"`
	ParentID         snowflake.ID   `gorm:"not null;uniqueIndex:ux_referral_relations_edge,priority:2" json:"parent_id"`
	ChildID          snowflake.ID   `gorm:"not null;uniqueIndex:ux_referral_relations_edge,priority:3" json:"child_id"`
	Depth            int            `gorm:"not null;default:1" json:"depth"`
	RelationshipType string         `gorm:"not null;default:'sponsor';uniqueIndex:ux_referral_relations_edge,priority:4" json:"relationship_type"`
	Status           RelationStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ReferralRelation) TableName() string { return "referral_relations" }
