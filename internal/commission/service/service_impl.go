package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referra/internal/clock"
	"github.com/smallbiznis/referra/internal/commission/calc"
	"github.com/smallbiznis/referra/internal/commission/domain"
	"github.com/smallbiznis/referra/internal/config"
	"github.com/smallbiznis/referra/internal/events"
	partnerdomain "github.com/smallbiznis/referra/internal/partner/domain"
	tenantdomain "github.com/smallbiznis/referra/internal/tenant/domain"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
	"github.com/smallbiznis/referra/internal/upline"
	"github.com/smallbiznis/referra/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/referra/internal/audit/domain"
	obsmetrics "github.com/smallbiznis/referra/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	EngineCfg   *config.EngineConfigHolder
	Resolver    upline.Resolver
	Repo        domain.Repository
	PartnerRepo partnerdomain.Repository
	TenantRepo  tenantdomain.Repository
	AuditSvc    auditdomain.Service
	Outbox      *events.Outbox            `optional:"true"`
	Metrics     *obsmetrics.EngineMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	engineCfg   *config.EngineConfigHolder
	resolver    upline.Resolver
	repo        domain.Repository
	partnerRepo partnerdomain.Repository
	tenantRepo  tenantdomain.Repository
	auditSvc    auditdomain.Service
	outbox      *events.Outbox
	metrics     *obsmetrics.EngineMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("commission.engine"),
		genID:       p.GenID,
		clock:       p.Clock,
		engineCfg:   p.EngineCfg,
		resolver:    p.Resolver,
		repo:        p.Repo,
		partnerRepo: p.PartnerRepo,
		tenantRepo:  p.TenantRepo,
		auditSvc:    p.AuditSvc,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
	}
}

// Process runs the engine for one transaction event: validate, resolve the
// upline, calculate, and persist every qualifying commission record inside a
// single database transaction. Either all records for the event become
// visible together or none do; rerunning the same event folds conflicting
// writes into "already present" instead of duplicating them.
func (s *Service) Process(ctx context.Context, tenantID snowflake.ID, event domain.TransactionEvent) (domain.Result, error) {
	runID := ulid.Make().String()
	start := time.Now()
	cfg := s.engineCfg.Get()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	event.TransactionID = strings.TrimSpace(event.TransactionID)
	result := domain.Result{
		TransactionID:         event.TransactionID,
		TotalCommissionAmount: decimal.Zero,
	}

	ancestors, err := s.run(ctx, tenantID, event, cfg, &result)
	duration := time.Since(start)

	result.Success = err == nil
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		if len(result.Errors) == 0 {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	s.metrics.ObserveRun(outcome, result.RecordsCreated, result.RecordsAlreadyPresent, duration)
	s.emitAudit(ctx, tenantID, runID, event, result, ancestors, duration)

	s.log.Info("engine run finished",
		zap.String("run_id", runID),
		zap.String("tenant_id", tenantID.String()),
		zap.String("transaction_id", event.TransactionID),
		zap.String("outcome", outcome),
		zap.Int("ancestors", ancestors),
		zap.Int("records_created", result.RecordsCreated),
		zap.Int("records_already_present", result.RecordsAlreadyPresent),
		zap.String("total_amount", result.TotalCommissionAmount.String()),
		zap.Duration("duration", duration),
	)

	return result, err
}

func (s *Service) run(ctx context.Context, tenantID snowflake.ID, event domain.TransactionEvent, cfg config.EngineConfig, result *domain.Result) (int, error) {
	if err := validateEvent(tenantID, event); err != nil {
		return 0, err
	}

	tenant, err := s.tenantRepo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return 0, domain.Retryable(err)
	}
	if tenant == nil {
		return 0, tenantdomain.ErrNotFound
	}

	source, err := s.partnerRepo.FindByID(ctx, s.db, tenantID, event.SourcePartnerID)
	if err != nil {
		return 0, domain.Retryable(err)
	}
	if source == nil {
		return 0, domain.ErrUnknownSourcePartner
	}

	members, err := s.resolver.Resolve(ctx, s.db, tenantID, source.ID, cfg.MaxGlobalDepth)
	if err != nil {
		switch {
		case errors.Is(err, partnerdomain.ErrNotFound):
			return 0, domain.ErrUnknownSourcePartner
		case errors.Is(err, partnerdomain.ErrSponsorNotFound), errors.Is(err, tierdomain.ErrNotFound):
			// Upstream data fault: terminal until the directory is fixed,
			// then the identical event can be replayed safely.
			return 0, err
		default:
			return 0, domain.Retryable(err)
		}
	}

	// An unsponsored partner's sale legitimately earns no commission.
	if len(members) == 0 {
		return 0, nil
	}

	var (
		created      int
		present      int
		total        = decimal.Zero
		recordIDs    []string
		calcFailures []string
	)

	now := s.clock.Now()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range members {
			amount, calcErr := calc.Calculate(event.Amount, m.Rate)
			if calcErr != nil {
				// Collected so every misconfigured ancestor is reported in
				// one run, but any failure rolls the whole event back.
				calcFailures = append(calcFailures,
					fmt.Sprintf("ancestor %s level %d: %v", m.PartnerID, m.LevelsFromSource, calcErr))
				continue
			}
			if amount.IsZero() && !cfg.RecordZeroAmounts {
				continue
			}

			record := domain.CommissionRecord{
				ID:                s.genID.Generate(),
				TenantID:          tenantID,
				TransactionID:     event.TransactionID,
				BeneficiaryID:     m.PartnerID,
				BeneficiaryCode:   m.Code,
				SourceID:          source.ID,
				SourceCode:        source.Code,
				LevelsFromSource:  m.LevelsFromSource,
				Rate:              m.Rate,
				Amount:            amount,
				Currency:          event.Currency,
				TierID:            m.TierID,
				TierName:          m.TierName,
				TierRate:          m.Rate,
				CalculationStatus: domain.CalculationStatusCalculated,
				PayoutStatus:      domain.PayoutStatusPending,
				CreatedAt:         now,
				UpdatedAt:         now,
			}

			write, err := s.repo.InsertIdempotent(ctx, tx, &record)
			if err != nil {
				return domain.Retryable(err)
			}
			if write.WasNewlyCreated {
				created++
			} else {
				present++
			}
			total = total.Add(amount)
			recordIDs = append(recordIDs, write.RecordID.String())
		}

		if len(calcFailures) > 0 {
			return domain.ErrCalculationFailed
		}

		if created > 0 && s.outbox != nil {
			payload := map[string]any{
				"transaction_id":          event.TransactionID,
				"source_partner_id":       source.ID.String(),
				"records_created":         created,
				"records_already_present": present,
				"total_amount":            total.String(),
				"currency":                event.Currency,
				"record_ids":              recordIDs,
			}
			if err := s.outbox.Enqueue(ctx, tx, tenantID, "commission.calculated", "transaction", event.TransactionID, payload); err != nil {
				return domain.Retryable(err)
			}
		}
		return nil
	})
	if txErr != nil {
		result.Errors = append(result.Errors, calcFailures...)
		if len(calcFailures) == 0 {
			result.Errors = append(result.Errors, txErr.Error())
		}
		return len(members), txErr
	}

	result.RecordsCreated = created
	result.RecordsAlreadyPresent = present
	result.TotalCommissionAmount = total
	return len(members), nil
}

func validateEvent(tenantID snowflake.ID, event domain.TransactionEvent) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if event.TransactionID == "" {
		return domain.ErrInvalidTransactionID
	}
	if event.SourcePartnerID == 0 {
		return domain.ErrUnknownSourcePartner
	}
	if event.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(event.Currency) == "" {
		return domain.ErrInvalidCurrency
	}
	if !event.Type.Valid() {
		return domain.ErrInvalidType
	}
	return nil
}

// emitAudit records the run summary regardless of outcome; silent failure is
// disallowed. The parent context may already be cancelled (timeout rollback),
// so the audit write detaches from it.
func (s *Service) emitAudit(ctx context.Context, tenantID snowflake.ID, runID string, event domain.TransactionEvent, result domain.Result, ancestors int, duration time.Duration) {
	if tenantID == 0 {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	targetID := event.TransactionID
	_ = s.auditSvc.AuditLog(auditCtx, tenantID, runID, "commission.process", "transaction", &targetID, map[string]any{
		"transaction_id":          event.TransactionID,
		"transaction_type":        string(event.Type),
		"source_partner_id":       event.SourcePartnerID.String(),
		"amount":                  event.Amount.String(),
		"currency":                event.Currency,
		"ancestors_processed":     ancestors,
		"records_created":         result.RecordsCreated,
		"records_already_present": result.RecordsAlreadyPresent,
		"total_amount":            result.TotalCommissionAmount.String(),
		"duration_ms":             duration.Milliseconds(),
		"success":                 result.Success,
		"errors":                  result.Errors,
	})
}

func (s *Service) GetByID(ctx context.Context, tenantID, id snowflake.ID) (domain.CommissionRecord, error) {
	if tenantID == 0 {
		return domain.CommissionRecord{}, domain.ErrInvalidTenant
	}
	record, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.CommissionRecord{}, err
	}
	if record == nil {
		return domain.CommissionRecord{}, domain.ErrNotFound
	}
	return *record, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req domain.ListCommissionRequest) (domain.ListCommissionResponse, error) {
	if tenantID == 0 {
		return domain.ListCommissionResponse{}, domain.ErrInvalidTenant
	}

	records, err := s.repo.List(ctx, s.db, tenantID, domain.ListFilter{
		TransactionID:     strings.TrimSpace(req.TransactionID),
		BeneficiaryID:     req.BeneficiaryID,
		CalculationStatus: req.CalculationStatus,
		PayoutStatus:      req.PayoutStatus,
	}, req.Pagination)
	if err != nil {
		return domain.ListCommissionResponse{}, err
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 10
	}
	records, pageInfo := pagination.BuildCursorPageInfo(records, limit, func(r *domain.CommissionRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		return token
	})

	out := make([]domain.CommissionRecord, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	return domain.ListCommissionResponse{PageInfo: *pageInfo, Records: out}, nil
}
