package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	Action  string
	RunID   string
	StartAt *time.Time
	EndAt   *time.Time
	Limit   int
}

type Service interface {
	AuditLog(ctx context.Context, tenantID snowflake.ID, runID, action, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, tenantID snowflake.ID, req ListAuditLogRequest) ([]AuditLog, error)
}

type ListFilter struct {
	Action  string
	RunID   string
	StartAt *time.Time
	EndAt   *time.Time
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
