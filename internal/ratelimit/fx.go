package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/referra/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// IngestLimiter guards the transaction ingest endpoint per tenant. Nil-safe:
// without Redis the limiter is disabled and ingestion is unthrottled.
type IngestLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewIngestLimiter(cfg config.Config, log *zap.Logger) *IngestLimiter {
	if cfg.RedisAddr == "" {
		log.Info("ingest rate limiter disabled, no redis configured")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return &IngestLimiter{
		bucket: NewTokenBucket(client),
		rate:   50,
		burst:  100,
	}
}

func (l *IngestLimiter) Bucket() *TokenBucket {
	if l == nil {
		return nil
	}
	return l.bucket
}

func (l *IngestLimiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return l.rate
}

func (l *IngestLimiter) Burst() int {
	if l == nil {
		return 0
	}
	return l.burst
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewIngestLimiter),
)
