package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tier *Tier) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Tier, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]*Tier, error)
}
