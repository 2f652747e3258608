package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"github.com/smallbiznis/meterbill/internal/ratelimit"
	"go.uber.org/zap"
)

// UsageIngestRateLimit charges each usage write against the caller's user
// bucket and, when configured, the tenant bucket. A redis failure rejects
// the write rather than letting usage in unmetered.
func (s *Server) UsageIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.usageLimiter.Enabled() {
			c.Next()
			return
		}
		sess, ok := currentSession(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		result, err := s.usageLimiter.AllowUser(ctx, sess.TenantID, sess.UserID)
		if err != nil {
			log.Warn("usage.ingest.rate_limit.check_failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		writeRateLimitHeaders(c, result)
		if result.Allowed {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		log.Warn("usage.ingest.rate_limited",
			zap.String("endpoint", route),
			zap.String("scope", result.Scope),
			zap.Duration("retry_after", result.RetryAfter),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitDenied(ctx, sess.TenantID.String(), route)
		}
		AbortWithError(c, ErrRateLimited)
	}
}

// writeRateLimitHeaders reports the tightest bucket. Retry-After is whole
// seconds, rounded up, and only sent on a rejection.
func writeRateLimitHeaders(c *gin.Context, r ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	if r.Scope != "" {
		c.Header("X-RateLimit-Scope", r.Scope)
	}
	if !r.Allowed {
		secs := int(math.Ceil(r.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
	}
}
