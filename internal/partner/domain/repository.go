package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListPartnerFilter struct {
	Status    PartnerStatus
	TierID    snowflake.ID
	SponsorID snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, partner *Partner) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Partner, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListPartnerFilter, page pagination.Pagination) ([]*Partner, error)
	InsertRelation(ctx context.Context, db *gorm.DB, relation *ReferralRelation) error
	FindRelation(ctx context.Context, db *gorm.DB, tenantID, parentID, childID snowflake.ID) (*ReferralRelation, error)
	SeverSponsor(ctx context.Context, db *gorm.DB, tenantID, partnerID snowflake.ID) error
}
