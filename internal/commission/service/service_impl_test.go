package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/referra/internal/audit/domain"
	"github.com/smallbiznis/referra/internal/cache"
	"github.com/smallbiznis/referra/internal/clock"
	"github.com/smallbiznis/referra/internal/commission/domain"
	commissionrepo "github.com/smallbiznis/referra/internal/commission/repository"
	"github.com/smallbiznis/referra/internal/config"
	partnerrepo "github.com/smallbiznis/referra/internal/partner/repository"
	tenantrepo "github.com/smallbiznis/referra/internal/tenant/repository"
	tierrepo "github.com/smallbiznis/referra/internal/tier/repository"
	"github.com/smallbiznis/referra/internal/upline"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditStub struct {
	mu      sync.Mutex
	actions []string
}

func (a *auditStub) AuditLog(ctx context.Context, tenantID snowflake.ID, runID, action, targetType string, targetID *string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func (a *auditStub) List(ctx context.Context, tenantID snowflake.ID, req auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func (a *auditStub) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type failingRepo struct {
	domain.Repository
	failOn int
	calls  int
}

func (r *failingRepo) InsertIdempotent(ctx context.Context, db *gorm.DB, record *domain.CommissionRecord) (domain.WriteResult, error) {
	r.calls++
	if r.calls == r.failOn {
		return domain.WriteResult{}, errors.New("connection reset by peer")
	}
	return r.Repository.InsertIdempotent(ctx, db, record)
}

type engineFixture struct {
	t        *testing.T
	db       *gorm.DB
	node     *snowflake.Node
	tenantID snowflake.ID
	audit    *auditStub
	service  domain.Service
}

func setupEngine(t *testing.T, cfg config.EngineConfig, repo domain.Repository) *engineFixture {
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
	prepareEngineSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	tenantID := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO tenants (id, slug, name, created_at, updated_at) VALUES (?, 'main', 'Main', ?, ?)`,
		tenantID, now, now,
	).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if repo == nil {
		repo = commissionrepo.Provide()
	}

	resolver := upline.New(upline.Params{
		Log:         zap.NewNop(),
		PartnerRepo: partnerrepo.Provide(),
		TierRepo:    tierrepo.Provide(),
		TierCache:   cache.NewTierCache(),
	})

	audit := &auditStub{}
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewFakeClock(now),
		EngineCfg:   config.StaticEngineConfigHolder(cfg),
		Resolver:    resolver,
		Repo:        repo,
		PartnerRepo: partnerrepo.Provide(),
		TenantRepo:  tenantrepo.Provide(),
		AuditSvc:    audit,
	})

	return &engineFixture{
		t:        t,
		db:       db,
		node:     node,
		tenantID: tenantID,
		audit:    audit,
		service:  svc,
	}
}

func prepareEngineSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE tenants (
			id BIGINT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
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
		`CREATE TABLE commission_records (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			transaction_id TEXT NOT NULL,
			beneficiary_id BIGINT NOT NULL,
			beneficiary_code TEXT NOT NULL,
			source_id BIGINT NOT NULL,
			source_code TEXT NOT NULL,
			levels_from_source INTEGER NOT NULL,
			rate DECIMAL(8,4) NOT NULL,
			amount DECIMAL(20,2) NOT NULL,
			currency TEXT NOT NULL,
			tier_id BIGINT NOT NULL,
			tier_name TEXT NOT NULL,
			tier_rate DECIMAL(8,4) NOT NULL,
			calculation_status TEXT NOT NULL DEFAULT 'calculated',
			payout_status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_commission_records_idempotency
			ON commission_records (tenant_id, transaction_id, beneficiary_id, levels_from_source)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func (f *engineFixture) seedTier(rate string, maxDepth int) snowflake.ID {
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

func (f *engineFixture) seedPartner(tierID snowflake.ID, sponsorID *snowflake.ID) snowflake.ID {
	f.t.Helper()
	now := time.Now().UTC()
	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO partners (id, tenant_id, code, name, tier_id, sponsor_id, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'active', '{}', ?, ?)`,
		id, f.tenantID, "p-"+id.String(), "Partner "+id.String(), tierID, sponsorID, now, now,
	).Error
	if err != nil {
		f.t.Fatalf("seed partner: %v", err)
	}
	if sponsorID != nil {
		err := f.db.Exec(
			`INSERT INTO referral_relations (id, tenant_id, parent_id, child_id, depth, relationship_type, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, 'sponsor', 'active', ?, ?)`,
			f.node.Generate(), f.tenantID, *sponsorID, id, now, now,
		).Error
		if err != nil {
			f.t.Fatalf("seed relation: %v", err)
		}
	}
	return id
}

func (f *engineFixture) countRecords() int {
	f.t.Helper()
	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM commission_records`).Scan(&count).Error; err != nil {
		f.t.Fatalf("count records: %v", err)
	}
	return count
}

func paymentEvent(txID string, sourceID snowflake.ID, amount string) domain.TransactionEvent {
	return domain.TransactionEvent{
		TransactionID:   txID,
		SourcePartnerID: sourceID,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		Type:            domain.TransactionTypePayment,
		OccurredAt:      time.Now().UTC(),
	}
}

func TestProcessPaysEligibleAncestorsOnly(t *testing.T) {
	f := setupEngine(t, config.DefaultEngineConfig(), nil)

	// B (8%, depth 1) sponsors A (10%, depth 3) sponsors the seller (5%,
	// depth 2). On the seller's sale, A earns at level 1 while B sits at
	// level 2, beyond B's own depth ceiling of 1.
	tierB := f.seedTier("0.08", 1)
	tierA := f.seedTier("0.10", 3)
	tierS := f.seedTier("0.05", 2)

	b := f.seedPartner(tierB, nil)
	a := f.seedPartner(tierA, &b)
	seller := f.seedPartner(tierS, &a)

	result, err := f.service.Process(context.Background(), f.tenantID, paymentEvent("tx-1001", seller, "100000"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if !result.Success || result.RecordsCreated != 1 || result.RecordsAlreadyPresent != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.TotalCommissionAmount.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected total 10000, got %s", result.TotalCommissionAmount)
	}

	var record domain.CommissionRecord
	if err := f.db.Raw(`SELECT * FROM commission_records`).Scan(&record).Error; err != nil {
		t.Fatalf("read record: %v", err)
	}
	if record.BeneficiaryID != a || record.LevelsFromSource != 1 {
		t.Fatalf("unexpected beneficiary: %+v", record)
	}
	if !record.Amount.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected amount 10000, got %s", record.Amount)
	}

	actions := f.audit.Actions()
	if len(actions) != 1 || actions[0] != "commission.process" {
		t.Fatalf("expected one audit entry, got %v", actions)
	}
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	f := setupEngine(t, config.DefaultEngineConfig(), nil)

	tier := f.seedTier("0.10", 3)
	sponsor := f.seedPartner(tier, nil)
	seller := f.seedPartner(tier, &sponsor)

	event := paymentEvent("tx-2002", seller, "500")
	first, err := f.service.Process(context.Background(), f.tenantID, event)
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	second, err := f.service.Process(context.Background(), f.tenantID, event)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}

	if first.RecordsCreated != 1 || first.RecordsAlreadyPresent != 0 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if second.RecordsCreated != 0 || second.RecordsAlreadyPresent != 1 {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if !first.TotalCommissionAmount.Equal(second.TotalCommissionAmount) {
		t.Fatalf("redelivery changed total: %s vs %s", first.TotalCommissionAmount, second.TotalCommissionAmount)
	}
	if got := f.countRecords(); got != 1 {
		t.Fatalf("expected 1 persisted record, got %d", got)
	}
}

func TestProcessEmptyUplineSucceeds(t *testing.T) {
	f := setupEngine(t, config.DefaultEngineConfig(), nil)

	tier := f.seedTier("0.10", 3)
	seller := f.seedPartner(tier, nil)

	result, err := f.service.Process(context.Background(), f.tenantID, paymentEvent("tx-3003", seller, "100"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Success || result.RecordsCreated != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.TotalCommissionAmount.IsZero() {
		t.Fatalf("expected zero total, got %s", result.TotalCommissionAmount)
	}
}

func TestProcessZeroAmountPolicy(t *testing.T) {
	t.Run("recorded by default", func(t *testing.T) {
		f := setupEngine(t, config.DefaultEngineConfig(), nil)
		tier := f.seedTier("0", 3)
		sponsor := f.seedPartner(tier, nil)
		seller := f.seedPartner(tier, &sponsor)

		result, err := f.service.Process(context.Background(), f.tenantID, paymentEvent("tx-4004", seller, "100"))
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if result.RecordsCreated != 1 {
			t.Fatalf("expected zero-amount record, got %+v", result)
		}
	})

	t.Run("skipped when disabled", func(t *testing.T) {
		cfg := config.DefaultEngineConfig()
		cfg.RecordZeroAmounts = false
		f := setupEngine(t, cfg, nil)
		tier := f.seedTier("0", 3)
		sponsor := f.seedPartner(tier, nil)
		seller := f.seedPartner(tier, &sponsor)

		result, err := f.service.Process(context.Background(), f.tenantID, paymentEvent("tx-4005", seller, "100"))
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if result.RecordsCreated != 0 || f.countRecords() != 0 {
			t.Fatalf("expected no records, got %+v", result)
		}
	})
}

func TestProcessHalfToEvenRounding(t *testing.T) {
	f := setupEngine(t, config.DefaultEngineConfig(), nil)

	// 12.5 * 0.01 = 0.125 rounds to 0.12 under banker's rounding.
	tier := f.seedTier("0.01", 3)
	sponsor := f.seedPartner(tier, nil)
	seller := f.seedPartner(tier, &sponsor)

	result, err := f.service.Process(context.Background(), f.tenantID, paymentEvent("tx-5005", seller, "12.5"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.TotalCommissionAmount.Equal(decimal.RequireFromString("0.12")) {
		t.Fatalf("expected 0.12, got %s", result.TotalCommissionAmount)
	}
}

func TestProcessValidationFailures(t *testing.T) {
	f := setupEngine(t, config.DefaultEngineConfig(), nil)
	tier := f.seedTier("0.10", 3)
	seller := f.seedPartner(tier, nil)

	cases := []struct {
		name  string
		event domain.TransactionEvent
		want  error
	}{
		{"missing transaction id", paymentEvent("", seller, "100"), domain.ErrInvalidTransactionID},
		{"zero amount", paymentEvent("tx-1", seller, "0"), domain.ErrInvalidAmount},
		{"negative amount", paymentEvent("tx-2", seller, "-5"), domain.ErrInvalidAmount},
		{"unknown type", func() domain.TransactionEvent {
			e := paymentEvent("tx-3", seller, "100")
			e.Type = "chargeback"
			return e
		}(), domain.ErrInvalidType},
		{"blank currency", func() domain.TransactionEvent {
			e := paymentEvent("tx-4", seller, "100")
			e.Currency = " "
			return e
		}(), domain.ErrInvalidCurrency},
		{"unknown source partner", paymentEvent("tx-5", f.node.Generate(), "100"), domain.ErrUnknownSourcePartner},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.service.Process(context.Background(), f.tenantID, tc.event)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if result.Success {
				t.Fatalf("expected failed result: %+v", result)
			}
		})
	}

	if got := f.countRecords(); got != 0 {
		t.Fatalf("validation failures must not persist records, got %d", got)
	}
}

func TestProcessPersistenceFailureRollsBackAllRecords(t *testing.T) {
	repo := &failingRepo{Repository: commissionrepo.Provide(), failOn: 2}
	f := setupEngine(t, config.DefaultEngineConfig(), repo)

	tier := f.seedTier("0.10", 5)
	grand := f.seedPartner(tier, nil)
	sponsor := f.seedPartner(tier, &grand)
	seller := f.seedPartner(tier, &sponsor)

	result, err := f.service.Process(context.Background(), f.tenantID, paymentEvent("tx-6006", seller, "1000"))
	if err == nil {
		t.Fatal("expected persistence failure")
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed result: %+v", result)
	}
	if got := f.countRecords(); got != 0 {
		t.Fatalf("partial records survived rollback: %d", got)
	}
}
