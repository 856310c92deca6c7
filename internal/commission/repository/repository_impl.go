package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/internal/commission/domain"
	pkgdb "github.com/smallbiznis/referra/pkg/db"
	"github.com/smallbiznis/referra/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertIdempotent relies on the unique index over
// (tenant_id, transaction_id, beneficiary_id, levels_from_source): the
// constraint, not application logic, is what makes concurrent duplicate runs
// safe. ON CONFLICT DO NOTHING swallows the conflict; the duplicate-key
// fallback covers drivers that surface it as an error instead.
func (r *repo) InsertIdempotent(ctx context.Context, db *gorm.DB, record *domain.CommissionRecord) (domain.WriteResult, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO commission_records (
			id, tenant_id, transaction_id, beneficiary_id, beneficiary_code,
			source_id, source_code, levels_from_source, rate, amount, currency,
			tier_id, tier_name, tier_rate, calculation_status, payout_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, transaction_id, beneficiary_id, levels_from_source) DO NOTHING`,
		record.ID,
		record.TenantID,
		record.TransactionID,
		record.BeneficiaryID,
		record.BeneficiaryCode,
		record.SourceID,
		record.SourceCode,
		record.LevelsFromSource,
		record.Rate,
		record.Amount,
		record.Currency,
		record.TierID,
		record.TierName,
		record.TierRate,
		record.CalculationStatus,
		record.PayoutStatus,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if result.Error != nil {
		if !pkgdb.IsDuplicateKeyErr(result.Error) {
			return domain.WriteResult{}, result.Error
		}
	} else if result.RowsAffected > 0 {
		return domain.WriteResult{RecordID: record.ID, WasNewlyCreated: true}, nil
	}

	existing, err := r.findByKey(ctx, db, record)
	if err != nil {
		return domain.WriteResult{}, err
	}
	if existing == nil {
		return domain.WriteResult{}, errors.New("commission record conflict without existing row")
	}
	return domain.WriteResult{RecordID: existing.ID, WasNewlyCreated: false}, nil
}

func (r *repo) findByKey(ctx context.Context, db *gorm.DB, record *domain.CommissionRecord) (*domain.CommissionRecord, error) {
	var existing domain.CommissionRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, transaction_id, beneficiary_id, beneficiary_code,
			source_id, source_code, levels_from_source, rate, amount, currency,
			tier_id, tier_name, tier_rate, calculation_status, payout_status,
			created_at, updated_at
		 FROM commission_records
		 WHERE tenant_id = ? AND transaction_id = ? AND beneficiary_id = ? AND levels_from_source = ?`,
		record.TenantID,
		record.TransactionID,
		record.BeneficiaryID,
		record.LevelsFromSource,
	).Scan(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing.ID == 0 {
		return nil, nil
	}
	return &existing, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.CommissionRecord, error) {
	var record domain.CommissionRecord
	err := db.WithContext(ctx).
		Model(&domain.CommissionRecord{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListByTransaction(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, transactionID string) ([]*domain.CommissionRecord, error) {
	var records []*domain.CommissionRecord
	err := db.WithContext(ctx).
		Model(&domain.CommissionRecord{}).
		Where("tenant_id = ? AND transaction_id = ?", tenantID, transactionID).
		Order("levels_from_source asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.CommissionRecord, error) {
	var records []*domain.CommissionRecord
	stmt := db.WithContext(ctx).
		Model(&domain.CommissionRecord{}).
		Where("tenant_id = ?", tenantID)
	if filter.TransactionID != "" {
		stmt = stmt.Where("transaction_id = ?", filter.TransactionID)
	}
	if filter.BeneficiaryID != 0 {
		stmt = stmt.Where("beneficiary_id = ?", filter.BeneficiaryID)
	}
	if filter.CalculationStatus != "" {
		stmt = stmt.Where("calculation_status = ?", filter.CalculationStatus)
	}
	if filter.PayoutStatus != "" {
		stmt = stmt.Where("payout_status = ?", filter.PayoutStatus)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("id < ?", lastID)
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}
	err := stmt.
		Order("id desc").
		Limit(limit + 1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
