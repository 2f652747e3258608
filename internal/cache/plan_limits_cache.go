package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
)

const defaultPlanLimitsTTL = 5 * time.Minute

// PlanLimitsCache stores resolved plan limits for the estimate hot path.
type PlanLimitsCache interface {
	Get(planID snowflake.ID) (plandomain.Limits, bool)
	Set(planID snowflake.ID, limits plandomain.Limits)
	Invalidate(planID snowflake.ID)
}

type planLimitsCache struct {
	limits Cache[snowflake.ID, plandomain.Limits]
	ttl    time.Duration
}

// NewPlanLimitsCache returns an in-memory cache for plan limits.
func NewPlanLimitsCache() PlanLimitsCache {
	return NewPlanLimitsCacheWithTTL(defaultPlanLimitsTTL)
}

func NewPlanLimitsCacheWithTTL(ttl time.Duration) PlanLimitsCache {
	return &planLimitsCache{
		limits: NewTTLCache[snowflake.ID, plandomain.Limits](),
		ttl:    ttl,
	}
}

func (c *planLimitsCache) Get(planID snowflake.ID) (plandomain.Limits, bool) {
	return c.limits.Get(planID)
}

func (c *planLimitsCache) Set(planID snowflake.ID, limits plandomain.Limits) {
	if planID == 0 {
		return
	}
	c.limits.Set(planID, limits, c.ttl)
}

func (c *planLimitsCache) Invalidate(planID snowflake.ID) {
	c.limits.Delete(planID)
}
