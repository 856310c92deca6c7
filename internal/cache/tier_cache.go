package cache

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/smallbiznis/referra/internal/tier/domain"
)

// Tiers rarely change, so upline traversal fronts catalog reads with a short
// TTL. Kept short so tier changes take effect promptly; the engine tolerates
// slightly stale directory snapshots.
const defaultTierTTL = 30 * time.Second

// TierCache stores hot-path tier lookups for upline resolution.
type TierCache interface {
	Get(tenantID, tierID snowflake.ID) (*tierdomain.Tier, bool)
	Set(tenantID, tierID snowflake.ID, tier *tierdomain.Tier)
}

type tierCache struct {
	tiers Cache[string, *tierdomain.Tier]
	ttl   time.Duration
}

func NewTierCache() TierCache {
	return &tierCache{
		tiers: NewTTLCache[string, *tierdomain.Tier](),
		ttl:   defaultTierTTL,
	}
}

func (c *tierCache) Get(tenantID, tierID snowflake.ID) (*tierdomain.Tier, bool) {
	return c.tiers.Get(tierKey(tenantID, tierID))
}

func (c *tierCache) Set(tenantID, tierID snowflake.ID, tier *tierdomain.Tier) {
	if tier == nil {
		return
	}
	c.tiers.Set(tierKey(tenantID, tierID), tier, c.ttl)
}

func tierKey(tenantID, tierID snowflake.ID) string {
	return fmt.Sprintf("%d|%d", tenantID, tierID)
}
