package upline

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referra/internal/cache"
	partnerdomain "github.com/smallbiznis/referra/internal/partner/domain"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Member is one qualifying ancestor in a resolved upline, carrying the tier
// snapshot read at resolution time.
type Member struct {
	PartnerID        snowflake.ID
	Code             string
	TierID           snowflake.ID
	TierName         string
	Rate             decimal.Decimal
	TierMaxDepth     int
	LevelsFromSource int
}

type Resolver interface {
	// Resolve walks the sponsor chain upward from the source partner and
	// returns the ordered ancestors entitled to earn from it. The source
	// itself (level 0) is excluded. An empty result is not an error.
	Resolve(ctx context.Context, db *gorm.DB, tenantID, sourcePartnerID snowflake.ID, maxGlobalDepth int) ([]Member, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	PartnerRepo partnerdomain.Repository
	TierRepo    tierdomain.Repository
	TierCache   cache.TierCache
}

type resolver struct {
	log         *zap.Logger
	partnerRepo partnerdomain.Repository
	tierRepo    tierdomain.Repository
	tierCache   cache.TierCache
}

func New(p Params) Resolver {
	return &resolver{
		log:         p.Log.Named("upline.resolver"),
		partnerRepo: p.PartnerRepo,
		tierRepo:    p.TierRepo,
		tierCache:   p.TierCache,
	}
}

func (r *resolver) Resolve(ctx context.Context, db *gorm.DB, tenantID, sourcePartnerID snowflake.ID, maxGlobalDepth int) ([]Member, error) {
	source, err := r.partnerRepo.FindByID(ctx, db, tenantID, sourcePartnerID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, partnerdomain.ErrNotFound
	}

	members := make([]Member, 0, maxGlobalDepth)
	visited := map[snowflake.ID]struct{}{source.ID: {}}

	current := source
	for level := 1; level <= maxGlobalDepth; level++ {
		if current.SponsorID == nil {
			break
		}
		sponsorID := *current.SponsorID

		// Cycle guard: a malformed graph must terminate, not hang. The
		// cyclic branch is abandoned and whatever qualified so far stands.
		if _, seen := visited[sponsorID]; seen {
			r.log.Warn("referral cycle detected, aborting branch",
				zap.String("tenant_id", tenantID.String()),
				zap.String("partner_id", current.ID.String()),
				zap.String("sponsor_id", sponsorID.String()),
			)
			break
		}
		visited[sponsorID] = struct{}{}

		sponsor, err := r.partnerRepo.FindByID(ctx, db, tenantID, sponsorID)
		if err != nil {
			return nil, err
		}
		if sponsor == nil {
			return nil, fmt.Errorf("dangling sponsor %s for partner %s: %w",
				sponsorID, current.ID, partnerdomain.ErrSponsorNotFound)
		}

		eligible := sponsor.Status == partnerdomain.PartnerStatusActive
		if eligible {
			relation, err := r.partnerRepo.FindRelation(ctx, db, tenantID, sponsor.ID, current.ID)
			if err != nil {
				return nil, err
			}
			if relation != nil && relation.Status != partnerdomain.RelationStatusActive {
				eligible = false
			}
		}

		// Ineligible ancestors do not contribute but do not block the walk;
		// the hop count still advances past them.
		if eligible {
			tier, err := r.lookupTier(ctx, db, tenantID, sponsor.TierID)
			if err != nil {
				return nil, err
			}
			if tier == nil {
				return nil, fmt.Errorf("missing tier %s for partner %s: %w",
					sponsor.TierID, sponsor.ID, tierdomain.ErrNotFound)
			}
			if level <= tier.MaxReferralDepth {
				members = append(members, Member{
					PartnerID:        sponsor.ID,
					Code:             sponsor.Code,
					TierID:           tier.ID,
					TierName:         tier.Name,
					Rate:             tier.DefaultCommissionRate,
					TierMaxDepth:     tier.MaxReferralDepth,
					LevelsFromSource: level,
				})
			}
		}

		current = sponsor
	}

	return members, nil
}

func (r *resolver) lookupTier(ctx context.Context, db *gorm.DB, tenantID, tierID snowflake.ID) (*tierdomain.Tier, error) {
	if tier, ok := r.tierCache.Get(tenantID, tierID); ok {
		return tier, nil
	}
	tier, err := r.tierRepo.FindByID(ctx, db, tenantID, tierID)
	if err != nil {
		return nil, err
	}
	if tier != nil {
		r.tierCache.Set(tenantID, tierID, tier)
	}
	return tier, nil
}

var Module = fx.Module("upline.resolver",
	fx.Provide(cache.NewTierCache),
	fx.Provide(New),
)
