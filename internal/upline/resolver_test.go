package upline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referra/internal/cache"
	partnerdomain "github.com/smallbiznis/referra/internal/partner/domain"
	partnerrepo "github.com/smallbiznis/referra/internal/partner/repository"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
	tierrepo "github.com/smallbiznis/referra/internal/tier/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	node     *snowflake.Node
	tenantID snowflake.ID
	resolver Resolver
}

func setupResolver(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	prepareReferralSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	resolver := New(Params{
		Log:         zap.NewNop(),
		PartnerRepo: partnerrepo.Provide(),
		TierRepo:    tierrepo.Provide(),
		TierCache:   cache.NewTierCache(),
	})

	return &fixture{
		t:        t,
		db:       db,
		node:     node,
		tenantID: node.Generate(),
		resolver: resolver,
	}
}

func prepareReferralSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE tiers (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			default_commission_rate DECIMAL(8,4) NOT NULL,
			min_commission_rate DECIMAL(8,4) NOT NULL DEFAULT 0,
			max_commission_rate DECIMAL(8,4) NOT NULL DEFAULT 1,
			max_referral_depth INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE partners (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			tier_id BIGINT NOT NULL,
			sponsor_id BIGINT,
			status TEXT NOT NULL DEFAULT 'active',
			metadata JSON,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE referral_relations (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			parent_id BIGINT NOT NULL,
			child_id BIGINT NOT NULL,
			depth INTEGER NOT NULL DEFAULT 1,
			relationship_type TEXT NOT NULL DEFAULT 'sponsor',
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func (f *fixture) seedTier(rate string, maxDepth int) snowflake.ID {
	f.t.Helper()
	now := time.Now().UTC()
	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO tiers (id, tenant_id, code, name, default_commission_rate,
			min_commission_rate, max_commission_rate, max_referral_depth, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?, ?)`,
		id, f.tenantID, "tier-"+id.String(), "Tier "+id.String(),
		decimal.RequireFromString(rate), maxDepth, now, now,
	).Error
	if err != nil {
		f.t.Fatalf("seed tier: %v", err)
	}
	return id
}

func (f *fixture) seedPartner(tierID snowflake.ID, sponsorID *snowflake.ID, status partnerdomain.PartnerStatus) snowflake.ID {
	f.t.Helper()
	now := time.Now().UTC()
	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO partners (id, tenant_id, code, name, tier_id, sponsor_id, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
		id, f.tenantID, "p-"+id.String(), "Partner "+id.String(), tierID, sponsorID, status, now, now,
	).Error
	if err != nil {
		f.t.Fatalf("seed partner: %v", err)
	}
	if sponsorID != nil {
		f.seedRelation(*sponsorID, id, partnerdomain.RelationStatusActive)
	}
	return id
}

func (f *fixture) seedRelation(parentID, childID snowflake.ID, status partnerdomain.RelationStatus) {
	f.t.Helper()
	now := time.Now().UTC()
	err := f.db.Exec(
		`INSERT INTO referral_relations (id, tenant_id, parent_id, child_id, depth, relationship_type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, 'sponsor', ?, ?, ?)`,
		f.node.Generate(), f.tenantID, parentID, childID, status, now, now,
	).Error
	if err != nil {
		f.t.Fatalf("seed relation: %v", err)
	}
}

func (f *fixture) severEdge(parentID, childID snowflake.ID) {
	f.t.Helper()
	err := f.db.Exec(
		`UPDATE referral_relations SET status = 'severed' WHERE parent_id = ? AND child_id = ?`,
		parentID, childID,
	).Error
	if err != nil {
		f.t.Fatalf("sever edge: %v", err)
	}
}

func TestResolveDepthCeilings(t *testing.T) {
	f := setupResolver(t)

	// Four ancestors above the source; each tier's ceiling decides whether
	// the ancestor's distance from the source qualifies.
	tierD3 := f.seedTier("0.10", 3)
	tierD1 := f.seedTier("0.08", 1)
	tierD5 := f.seedTier("0.07", 5)
	tierD2 := f.seedTier("0.05", 2)

	top := f.seedPartner(tierD2, nil, partnerdomain.PartnerStatusActive)       // level 4, depth 2
	third := f.seedPartner(tierD5, &top, partnerdomain.PartnerStatusActive)    // level 3, depth 5
	second := f.seedPartner(tierD1, &third, partnerdomain.PartnerStatusActive) // level 2, depth 1
	first := f.seedPartner(tierD3, &second, partnerdomain.PartnerStatusActive) // level 1, depth 3
	source := f.seedPartner(tierD2, &first, partnerdomain.PartnerStatusActive)

	members, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// second (depth 1 at level 2) and top (depth 2 at level 4) miss their
	// ceilings; first and third qualify.
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d: %+v", len(members), members)
	}
	if members[0].PartnerID != first || members[0].LevelsFromSource != 1 {
		t.Fatalf("unexpected first member: %+v", members[0])
	}
	if members[1].PartnerID != third || members[1].LevelsFromSource != 3 {
		t.Fatalf("unexpected second member: %+v", members[1])
	}
	if !members[0].Rate.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("unexpected rate: %s", members[0].Rate)
	}
}

func TestResolveGlobalDepthCutoff(t *testing.T) {
	f := setupResolver(t)
	tier := f.seedTier("0.05", 10)

	top := f.seedPartner(tier, nil, partnerdomain.PartnerStatusActive)
	mid := f.seedPartner(tier, &top, partnerdomain.PartnerStatusActive)
	first := f.seedPartner(tier, &mid, partnerdomain.PartnerStatusActive)
	source := f.seedPartner(tier, &first, partnerdomain.PartnerStatusActive)

	members, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 2)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members under global cap, got %d", len(members))
	}
	if members[1].PartnerID != mid {
		t.Fatalf("unexpected member at cap: %+v", members[1])
	}
}

func TestResolveSkipsIneligibleAncestorsButKeepsCounting(t *testing.T) {
	f := setupResolver(t)
	tier := f.seedTier("0.05", 10)

	top := f.seedPartner(tier, nil, partnerdomain.PartnerStatusActive)
	inactive := f.seedPartner(tier, &top, partnerdomain.PartnerStatusInactive)
	first := f.seedPartner(tier, &inactive, partnerdomain.PartnerStatusActive)
	source := f.seedPartner(tier, &first, partnerdomain.PartnerStatusActive)

	members, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// The inactive ancestor earns nothing but still occupies level 2, so the
	// grandsponsor sits at level 3, not level 2.
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].PartnerID != first || members[0].LevelsFromSource != 1 {
		t.Fatalf("unexpected first member: %+v", members[0])
	}
	if members[1].PartnerID != top || members[1].LevelsFromSource != 3 {
		t.Fatalf("unexpected top member: %+v", members[1])
	}
}

func TestResolveSeveredEdgeExcludesSponsor(t *testing.T) {
	f := setupResolver(t)
	tier := f.seedTier("0.05", 10)

	top := f.seedPartner(tier, nil, partnerdomain.PartnerStatusActive)
	first := f.seedPartner(tier, &top, partnerdomain.PartnerStatusActive)
	source := f.seedPartner(tier, &first, partnerdomain.PartnerStatusActive)
	f.severEdge(first, source)

	members, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// The severed edge mutes only the direct sponsor; the walk continues and
	// the grandsponsor still earns at level 2.
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d: %+v", len(members), members)
	}
	if members[0].PartnerID != top || members[0].LevelsFromSource != 2 {
		t.Fatalf("unexpected member: %+v", members[0])
	}
}

func TestResolveEmptyUpline(t *testing.T) {
	f := setupResolver(t)
	tier := f.seedTier("0.05", 3)
	source := f.seedPartner(tier, nil, partnerdomain.PartnerStatusActive)

	members, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty upline, got %d members", len(members))
	}
}

func TestResolveCycleTerminates(t *testing.T) {
	f := setupResolver(t)
	tier := f.seedTier("0.05", 10)

	a := f.seedPartner(tier, nil, partnerdomain.PartnerStatusActive)
	b := f.seedPartner(tier, &a, partnerdomain.PartnerStatusActive)
	source := f.seedPartner(tier, &b, partnerdomain.PartnerStatusActive)

	// Corrupt the graph: a's sponsor points back down to the source.
	if err := f.db.Exec(`UPDATE partners SET sponsor_id = ? WHERE id = ?`, source, a).Error; err != nil {
		t.Fatalf("corrupt graph: %v", err)
	}
	f.seedRelation(source, a, partnerdomain.RelationStatusActive)

	members, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// b and a each earn once; the wrap-around to the source is abandoned.
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestResolveUnknownSourcePartner(t *testing.T) {
	f := setupResolver(t)

	_, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, f.node.Generate(), 10)
	if !errors.Is(err, partnerdomain.ErrNotFound) {
		t.Fatalf("expected unknown partner error, got %v", err)
	}
}

func TestResolveMissingTierFails(t *testing.T) {
	f := setupResolver(t)
	tier := f.seedTier("0.05", 10)

	first := f.seedPartner(tier, nil, partnerdomain.PartnerStatusActive)
	source := f.seedPartner(tier, &first, partnerdomain.PartnerStatusActive)
	if err := f.db.Exec(`UPDATE partners SET tier_id = ? WHERE id = ?`, f.node.Generate(), first).Error; err != nil {
		t.Fatalf("reassign tier: %v", err)
	}

	_, err := f.resolver.Resolve(context.Background(), f.db, f.tenantID, source, 10)
	if !errors.Is(err, tierdomain.ErrNotFound) {
		t.Fatalf("expected missing tier error, got %v", err)
	}
}
