package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referra/pkg/db/pagination"
)

type EnrollPartnerRequest struct {
	Code      string
	Name      string
	TierID    snowflake.ID
	SponsorID *snowflake.ID
	Metadata  map[string]any
}

type ListPartnerRequest struct {
	pagination.Pagination
	Status PartnerStatus
}

type ListPartnerResponse struct {
	pagination.PageInfo
	Partners []Partner `json:"partners"`
}

type Service interface {
	Enroll(ctx context.Context, tenantID snowflake.ID, req EnrollPartnerRequest) (Partner, error)
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (Partner, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListPartnerRequest) (ListPartnerResponse, error)
	SeverSponsor(ctx context.Context, tenantID, id snowflake.ID) error
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrSelfSponsor      = errors.New("self_sponsor")
	ErrSponsorNotFound  = errors.New("sponsor_not_found")
	ErrNotFound         = errors.New("partner_not_found")
	ErrDuplicateCode    = errors.New("duplicate_partner_code")
	ErrNoSponsor        = errors.New("no_sponsor")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
