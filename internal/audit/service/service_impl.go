package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, tenantID snowflake.ID, runID, action, targetType string, targetID *string, metadata map[string]any) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := domain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		RunID:      strings.TrimSpace(runID),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		// Audit failure must never mask the run outcome; log loudly instead.
		s.log.Error("failed to persist audit log",
			zap.String("action", action),
			zap.String("run_id", entry.RunID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, req domain.ListAuditLogRequest) ([]domain.AuditLog, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return nil, domain.ErrInvalidTimeRange
	}
	logs, err := s.repo.List(ctx, s.db, tenantID, domain.ListFilter{
		Action:  req.Action,
		RunID:   req.RunID,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
		Limit:   req.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, *l)
	}
	return out, nil
}
