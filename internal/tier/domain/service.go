package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateTierRequest struct {
	Code                  string
	Name                  string
	DefaultCommissionRate decimal.Decimal
	MinCommissionRate     decimal.Decimal
	MaxCommissionRate     decimal.Decimal
	MaxReferralDepth      int
}

type GetTierRequest struct {
	ID snowflake.ID
}

type Service interface {
	Create(ctx context.Context, tenantID snowflake.ID, req CreateTierRequest) (Tier, error)
	GetByID(ctx context.Context, tenantID snowflake.ID, req GetTierRequest) (Tier, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]Tier, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidCode       = errors.New("invalid_code")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrRateOutsideWindow = errors.New("rate_outside_window")
	ErrInvalidDepth      = errors.New("invalid_depth")
	ErrNotFound          = errors.New("tier_not_found")
	ErrDuplicateCode     = errors.New("duplicate_tier_code")
)
