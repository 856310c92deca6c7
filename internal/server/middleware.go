package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderTenant    = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"

	contextTenantIDKey = "tenant_id"
)

// RequestID propagates or generates a request id for log/trace correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// TenantContext resolves the tenant from the X-Tenant-ID header. The tenant
// id is threaded explicitly from here into every service call; there is no
// ambient tenant state.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, fmt.Errorf("missing %s header: %w", HeaderTenant, ErrInvalidRequest))
			return
		}
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, fmt.Errorf("malformed %s header: %w", HeaderTenant, ErrInvalidRequest))
			return
		}

		tenant, err := s.tenantRepo.FindByID(c.Request.Context(), s.db, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if tenant == nil {
			AbortWithError(c, fmt.Errorf("tenant %s: %w", raw, ErrNotFound))
			return
		}

		c.Set(contextTenantIDKey, tenant.ID)
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextTenantIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

// RateLimited throttles ingest per tenant when Redis is configured.
func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := s.limiter.Bucket()
		if bucket == nil {
			c.Next()
			return
		}
		key := "ratelimit:ingest:" + tenantFromContext(c).String()
		res, err := bucket.Allow(c.Request.Context(), key, s.limiter.Rate(), s.limiter.Burst())
		if err != nil {
			// Redis trouble must not block ingestion; idempotency makes
			// over-admission safe.
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
