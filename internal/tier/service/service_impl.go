package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referra/internal/tier/domain"
	pkgdb "github.com/smallbiznis/referra/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tier.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

var (
	rateFloor = decimal.Zero
	rateCeil  = decimal.NewFromInt(1)
)

func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req domain.CreateTierRequest) (domain.Tier, error) {
	if tenantID == 0 {
		return domain.Tier{}, domain.ErrInvalidTenant
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Tier{}, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tier{}, domain.ErrInvalidName
	}
	if req.MaxReferralDepth < 1 {
		return domain.Tier{}, domain.ErrInvalidDepth
	}

	min := req.MinCommissionRate
	max := req.MaxCommissionRate
	if max.IsZero() {
		max = rateCeil
	}
	rate := req.DefaultCommissionRate
	if rate.LessThan(rateFloor) || rate.GreaterThan(rateCeil) {
		return domain.Tier{}, domain.ErrInvalidRate
	}
	if min.GreaterThan(max) || rate.LessThan(min) || rate.GreaterThan(max) {
		return domain.Tier{}, domain.ErrRateOutsideWindow
	}

	now := time.Now().UTC()
	tier := domain.Tier{
		ID:                    s.genID.Generate(),
		TenantID:              tenantID,
		Code:                  code,
		Name:                  name,
		DefaultCommissionRate: rate,
		MinCommissionRate:     min,
		MaxCommissionRate:     max,
		MaxReferralDepth:      req.MaxReferralDepth,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.Insert(ctx, s.db, &tier); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Tier{}, domain.ErrDuplicateCode
		}
		return domain.Tier{}, err
	}
	return tier, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID snowflake.ID, req domain.GetTierRequest) (domain.Tier, error) {
	if tenantID == 0 {
		return domain.Tier{}, domain.ErrInvalidTenant
	}
	tier, err := s.repo.FindByID(ctx, s.db, tenantID, req.ID)
	if err != nil {
		return domain.Tier{}, err
	}
	if tier == nil {
		return domain.Tier{}, domain.ErrNotFound
	}
	return *tier, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]domain.Tier, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	tiers, err := s.repo.List(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Tier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, *t)
	}
	return out, nil
}
