package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tiers (
			id, tenant_id, code, name, default_commission_rate,
			min_commission_rate, max_commission_rate, max_referral_depth,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tier.ID,
		tier.TenantID,
		tier.Code,
		tier.Name,
		tier.DefaultCommissionRate,
		tier.MinCommissionRate,
		tier.MaxCommissionRate,
		tier.MaxReferralDepth,
		tier.CreatedAt,
		tier.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Tier, error) {
	var tier domain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, default_commission_rate,
			min_commission_rate, max_commission_rate, max_referral_depth,
			created_at, updated_at
		 FROM tiers WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&tier).Error
	if err != nil {
		return nil, err
	}
	if tier.ID == 0 {
		return nil, nil
	}
	return &tier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*domain.Tier, error) {
	var tiers []*domain.Tier
	err := db.WithContext(ctx).
		Model(&domain.Tier{}).
		Where("tenant_id = ?", tenantID).
		Order("created_at asc, id asc").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}
