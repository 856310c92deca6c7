package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/referra/internal/partner/domain"
	pkgdb "github.com/smallbiznis/referra/pkg/db"
	"github.com/smallbiznis/referra/pkg/db/pagination"
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
		log:   p.Log.Named("partner.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Enroll creates a partner and, when a sponsor is supplied, the direct
// referral edge. The sponsor link is set exactly once here; there is no
// operation that redirects it, so enrollment cannot introduce a cycle.
func (s *Service) Enroll(ctx context.Context, tenantID snowflake.ID, req domain.EnrollPartnerRequest) (domain.Partner, error) {
	if tenantID == 0 {
		return domain.Partner{}, domain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Partner{}, domain.ErrInvalidName
	}
	if req.TierID == 0 {
		return domain.Partner{}, domain.ErrInvalidTier
	}

	id := s.genID.Generate()
	if req.SponsorID != nil {
		if *req.SponsorID == id || *req.SponsorID == 0 {
			return domain.Partner{}, domain.ErrSelfSponsor
		}
		sponsor, err := s.repo.FindByID(ctx, s.db, tenantID, *req.SponsorID)
		if err != nil {
			return domain.Partner{}, err
		}
		if sponsor == nil {
			return domain.Partner{}, domain.ErrSponsorNotFound
		}
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	}

	now := time.Now().UTC()
	partner := domain.Partner{
		ID:        id,
		TenantID:  tenantID,
		Code:      code,
		Name:      name,
		TierID:    req.TierID,
		SponsorID: req.SponsorID,
		Status:    domain.PartnerStatusActive,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &partner); err != nil {
			return err
		}
		if req.SponsorID == nil {
			return nil
		}
		relation := domain.ReferralRelation{
			ID:               s.genID.Generate(),
			TenantID:         tenantID,
			ParentID:         *req.SponsorID,
			ChildID:          partner.ID,
			Depth:            1,
			RelationshipType: domain.RelationTypeSponsor,
			Status:           domain.RelationStatusActive,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return s.repo.InsertRelation(ctx, tx, &relation)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Partner{}, domain.ErrDuplicateCode
		}
		return domain.Partner{}, err
	}

	return partner, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, id snowflake.ID) (domain.Partner, error) {
	if tenantID == 0 {
		return domain.Partner{}, domain.ErrInvalidTenant
	}
	partner, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Partner{}, err
	}
	if partner == nil {
		return domain.Partner{}, domain.ErrNotFound
	}
	return *partner, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req domain.ListPartnerRequest) (domain.ListPartnerResponse, error) {
	if tenantID == 0 {
		return domain.ListPartnerResponse{}, domain.ErrInvalidTenant
	}

	partners, err := s.repo.List(ctx, s.db, tenantID, domain.ListPartnerFilter{Status: req.Status}, req.Pagination)
	if err != nil {
		return domain.ListPartnerResponse{}, err
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 10
	}
	partners, pageInfo := pagination.BuildCursorPageInfo(partners, limit, func(p *domain.Partner) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: p.ID.String()})
		return token
	})

	out := make([]domain.Partner, 0, len(partners))
	for _, p := range partners {
		out = append(out, *p)
	}
	return domain.ListPartnerResponse{PageInfo: *pageInfo, Partners: out}, nil
}

// SeverSponsor deactivates the partner's upline edge without deleting
// history. The sponsor_id column is kept for lineage; traversal honors the
// severed relation instead.
func (s *Service) SeverSponsor(ctx context.Context, tenantID, id snowflake.ID) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	partner, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return err
	}
	if partner == nil {
		return domain.ErrNotFound
	}
	if partner.SponsorID == nil {
		return domain.ErrNoSponsor
	}
	return s.repo.SeverSponsor(ctx, s.db, tenantID, id)
}
