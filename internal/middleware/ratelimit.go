package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/apierr"
	"github.com/stockroomhq/inventory-gateway/internal/ratelimit"
)

// Burst limiter: short window, one ceiling for all callers, keyed so it
// can run before any identity is resolved. Protects shared infrastructure
// from spikes.
func BurstLimit(store ratelimit.Store, limit int, window time.Duration) gin.HandlerFunc {
	limiter := ratelimit.NewFixedWindow(store, "burst", limit, window)

	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), burstKey(c))
		if err != nil {
			log.Printf("Burst limit check failed: %v", err)
			apierr.Abort(c, apierr.Internal())
			return
		}

		if !allowed {
			rejectRateLimited(c, limiter, "burst")
			return
		}

		c.Next()
	}
}

// Pre-auth sustained check keyed by client IP, bounding anonymous abuse
// before the authority is ever consulted. Disabled when limit <= 0.
func AnonymousSustained(store ratelimit.Store, limit int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := ratelimit.NewFixedWindow(store, "anon", limit, time.Hour)

	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			log.Printf("Anonymous sustained limit check failed: %v", err)
			apierr.Abort(c, apierr.Internal())
			return
		}

		if !allowed {
			rejectRateLimited(c, limiter, "anon")
			return
		}

		c.Next()
	}
}

// Sustained limiter: hourly ceiling scaled by subscription plan, keyed by
// the resolved tenant. Also injects the informational X-RateLimit-*
// headers on every authenticated request, rejected or not.
func PlanSustained(store ratelimit.Store, ceilings *ratelimit.PlanCeilings) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := TenantFromContext(c)
		if !ok {
			// Unauthenticated routes are covered by the anonymous tier.
			c.Next()
			return
		}

		limit := ceilings.Ceiling(tenant.SubscriptionPlan)
		limiter := ratelimit.NewFixedWindow(store, "sustained", limit, time.Hour)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Window", fmt.Sprintf("%d", int(limiter.Window().Seconds())))
		c.Header("X-RateLimit-Plan", tenant.SubscriptionPlan)

		allowed, err := limiter.Allow(c.Request.Context(), "tenant:"+tenant.TenantID)
		if err != nil {
			log.Printf("Sustained limit check failed: %v", err)
			apierr.Abort(c, apierr.Internal())
			return
		}

		if !allowed {
			rejectRateLimited(c, limiter, "sustained")
			return
		}

		c.Next()
	}
}

// In-process spike pre-filter in front of the shared counter store. Nil
// store disables it.
func SpikeFilter(local *ratelimit.LocalStore) gin.HandlerFunc {
	if local == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if !local.Get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			apierr.Abort(c, apierr.RateLimitExceeded().WithDetails(gin.H{
				"tier": "local",
			}))
			return
		}

		c.Next()
	}
}

func rejectRateLimited(c *gin.Context, limiter *ratelimit.FixedWindowLimiter, tier string) {
	resetAt := limiter.Reset()

	retryAfter := int(time.Until(resetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	apierr.Abort(c, apierr.RateLimitExceeded().WithDetails(gin.H{
		"tier":                tier,
		"limit":               limiter.Limit(),
		"retry_after_seconds": retryAfter,
	}))
}

// Keyed by caller IP when known, otherwise by a hash prefix of the raw
// credential. Both work before identity is resolved.
func burstKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}

	sum := sha256.Sum256([]byte(c.GetHeader("Authorization")))
	return "tok:" + hex.EncodeToString(sum[:8])
}
