package seed

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	tenantdomain "github.com/smallbiznis/referra/internal/tenant/domain"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
	"gorm.io/gorm"
)

const defaultTenantSlug = "main"

// EnsureDefaultTenant creates the default tenant and its starter tiers when
// the database is empty. Safe to run on every boot.
func EnsureDefaultTenant(db *gorm.DB) error {
	return ensure(db, 0)
}

// EnsureDefaultTenantWithID is EnsureDefaultTenant with a fixed tenant id,
// used when deployments pin the default tenant across environments.
func EnsureDefaultTenantWithID(db *gorm.DB, id snowflake.ID) error {
	return ensure(db, id)
}

func ensure(db *gorm.DB, id snowflake.ID) error {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var existing tenantdomain.Tenant
		if err := tx.Where("slug = ?", defaultTenantSlug).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if existing.ID != 0 {
			return nil
		}

		if id == 0 {
			id = node.Generate()
		}
		now := time.Now().UTC()

		tenant := tenantdomain.Tenant{
			ID:        id,
			Slug:      defaultTenantSlug,
			Name:      "Main",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		tiers := []tierdomain.Tier{
			{
				ID:                    node.Generate(),
				TenantID:              id,
				Code:                  "standard",
				Name:                  "Standard",
				DefaultCommissionRate: decimal.NewFromFloat(0.05),
				MinCommissionRate:     decimal.Zero,
				MaxCommissionRate:     decimal.NewFromInt(1),
				MaxReferralDepth:      1,
				CreatedAt:             now,
				UpdatedAt:             now,
			},
			{
				ID:                    node.Generate(),
				TenantID:              id,
				Code:                  "gold",
				Name:                  "Gold",
				DefaultCommissionRate: decimal.NewFromFloat(0.08),
				MinCommissionRate:     decimal.Zero,
				MaxCommissionRate:     decimal.NewFromInt(1),
				MaxReferralDepth:      2,
				CreatedAt:             now,
				UpdatedAt:             now,
			},
			{
				ID:                    node.Generate(),
				TenantID:              id,
				Code:                  "platinum",
				Name:                  "Platinum",
				DefaultCommissionRate: decimal.NewFromFloat(0.10),
				MinCommissionRate:     decimal.Zero,
				MaxCommissionRate:     decimal.NewFromInt(1),
				MaxReferralDepth:      3,
				CreatedAt:             now,
				UpdatedAt:             now,
			},
		}
		return tx.Create(&tiers).Error
	})
}
