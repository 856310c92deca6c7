package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/internal/partner/domain"
	"github.com/smallbiznis/referra/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, partner *domain.Partner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partners (
			id, tenant_id, code, name, tier_id, sponsor_id, status, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partner.ID,
		partner.TenantID,
		partner.Code,
		partner.Name,
		partner.TierID,
		partner.SponsorID,
		partner.Status,
		partner.Metadata,
		partner.CreatedAt,
		partner.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Partner, error) {
	var partner domain.Partner
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, tier_id, sponsor_id, status, metadata,
			created_at, updated_at
		 FROM partners WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&partner).Error
	if err != nil {
		return nil, err
	}
	if partner.ID == 0 {
		return nil, nil
	}
	return &partner, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListPartnerFilter, page pagination.Pagination) ([]*domain.Partner, error) {
	var partners []*domain.Partner
	stmt := db.WithContext(ctx).
		Model(&domain.Partner{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.TierID != 0 {
		stmt = stmt.Where("tier_id = ?", filter.TierID)
	}
	if filter.SponsorID != 0 {
		stmt = stmt.Where("sponsor_id = ?", filter.SponsorID)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("id < ?", lastID)
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}
	err := stmt.
		Order("id desc").
		Limit(limit + 1).
		Find(&partners).Error
	if err != nil {
		return nil, err
	}
	return partners, nil
}

func (r *repo) InsertRelation(ctx context.Context, db *gorm.DB, relation *domain.ReferralRelation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referral_relations (
			id, tenant_id, parent_id, child_id, depth, relationship_type, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		relation.ID,
		relation.TenantID,
		relation.ParentID,
		relation.ChildID,
		relation.Depth,
		relation.RelationshipType,
		relation.Status,
		relation.CreatedAt,
		relation.UpdatedAt,
	).Error
}

func (r *repo) FindRelation(ctx context.Context, db *gorm.DB, tenantID, parentID, childID snowflake.ID) (*domain.ReferralRelation, error) {
	var relation domain.ReferralRelation
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, parent_id, child_id, depth, relationship_type, status,
			created_at, updated_at
		 FROM referral_relations
		 WHERE tenant_id = ? AND parent_id = ? AND child_id = ? AND relationship_type = ?`,
		tenantID,
		parentID,
		childID,
		domain.RelationTypeSponsor,
	).Scan(&relation).Error
	if err != nil {
		return nil, err
	}
	if relation.ID == 0 {
		return nil, nil
	}
	return &relation, nil
}

func (r *repo) SeverSponsor(ctx context.Context, db *gorm.DB, tenantID, partnerID snowflake.ID) error {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).Exec(
		`UPDATE referral_relations SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND child_id = ? AND relationship_type = ?`,
		domain.RelationStatusSevered,
		now,
		tenantID,
		partnerID,
		domain.RelationTypeSponsor,
	).Error; err != nil {
		return err
	}
	return nil
}
