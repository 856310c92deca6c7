package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/referra/internal/partner/domain"
	"github.com/smallbiznis/referra/internal/partner/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPartnerService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	stmts := []string{
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
		`CREATE UNIQUE INDEX ux_partners_tenant_code ON partners (tenant_id, code)`,
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

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})

	return svc, db, node, node.Generate()
}

func TestEnrollGeneratesCodeFromName(t *testing.T) {
	svc, _, node, tenantID := setupPartnerService(t)

	partner, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{
		Name:   "Acme Referrals Ltd",
		TierID: node.Generate(),
	})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if partner.Code != "acme-referrals-ltd" {
		t.Fatalf("unexpected code: %q", partner.Code)
	}
	if partner.Status != domain.PartnerStatusActive {
		t.Fatalf("unexpected status: %q", partner.Status)
	}
}

func TestEnrollWritesSponsorEdge(t *testing.T) {
	svc, db, node, tenantID := setupPartnerService(t)
	tierID := node.Generate()

	sponsor, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{Name: "Sponsor", TierID: tierID})
	if err != nil {
		t.Fatalf("enroll sponsor: %v", err)
	}

	child, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{
		Name:      "Child",
		TierID:    tierID,
		SponsorID: &sponsor.ID,
	})
	if err != nil {
		t.Fatalf("enroll child: %v", err)
	}

	var count int
	err = db.Raw(
		`SELECT COUNT(1) FROM referral_relations WHERE parent_id = ? AND child_id = ? AND status = 'active'`,
		sponsor.ID, child.ID,
	).Scan(&count).Error
	if err != nil {
		t.Fatalf("count relations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one sponsor edge, got %d", count)
	}
}

func TestEnrollRejectsUnknownSponsor(t *testing.T) {
	svc, _, node, tenantID := setupPartnerService(t)
	ghost := node.Generate()

	_, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{
		Name:      "Orphan",
		TierID:    node.Generate(),
		SponsorID: &ghost,
	})
	if !errors.Is(err, domain.ErrSponsorNotFound) {
		t.Fatalf("expected sponsor not found, got %v", err)
	}
}

func TestEnrollRejectsDuplicateCode(t *testing.T) {
	svc, _, node, tenantID := setupPartnerService(t)
	tierID := node.Generate()

	if _, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{Name: "Same Name", TierID: tierID}); err != nil {
		t.Fatalf("first enroll: %v", err)
	}
	_, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{Name: "Same Name", TierID: tierID})
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
}

func TestSeverSponsor(t *testing.T) {
	svc, db, node, tenantID := setupPartnerService(t)
	tierID := node.Generate()

	sponsor, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{Name: "Sponsor", TierID: tierID})
	if err != nil {
		t.Fatalf("enroll sponsor: %v", err)
	}
	child, err := svc.Enroll(context.Background(), tenantID, domain.EnrollPartnerRequest{
		Name:      "Child",
		TierID:    tierID,
		SponsorID: &sponsor.ID,
	})
	if err != nil {
		t.Fatalf("enroll child: %v", err)
	}

	if err := svc.SeverSponsor(context.Background(), tenantID, child.ID); err != nil {
		t.Fatalf("sever: %v", err)
	}

	var status string
	err = db.Raw(
		`SELECT status FROM referral_relations WHERE parent_id = ? AND child_id = ?`,
		sponsor.ID, child.ID,
	).Scan(&status).Error
	if err != nil {
		t.Fatalf("read relation: %v", err)
	}
	if status != string(domain.RelationStatusSevered) {
		t.Fatalf("expected severed edge, got %q", status)
	}

	if err := svc.SeverSponsor(context.Background(), tenantID, sponsor.ID); !errors.Is(err, domain.ErrNoSponsor) {
		t.Fatalf("expected no sponsor error, got %v", err)
	}
}
