package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lnurl-atm-gateway/config"
	redisStore "lnurl-atm-gateway/internal/adapter/storage/redis"
	"lnurl-atm-gateway/pkg/apperror"
	"lnurl-atm-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitStore counts requests per key and window.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*redisStore.RateLimitResult, error)
}

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RateLimitRules returns the limits per endpoint group. Unset limits keep
// their defaults.
func RateLimitRules(cfg config.RateLimitConfig) map[string]RateLimitRule {
	rules := map[string]RateLimitRule{
		"withdraw": {Limit: 30, Window: time.Minute},
		"admin":    {Limit: 120, Window: time.Minute},
		"topup":    {Limit: 20, Window: time.Minute},
	}
	if cfg.WithdrawPerMinute > 0 {
		rules["withdraw"] = RateLimitRule{Limit: int64(cfg.WithdrawPerMinute), Window: time.Minute}
	}
	if cfg.AdminPerMinute > 0 {
		rules["admin"] = RateLimitRule{Limit: int64(cfg.AdminPerMinute), Window: time.Minute}
	}
	return rules
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Over-limit admin requests get the JSON error envelope; withdraw requests get
// an LNURL error body.
func RateLimiter(store RateLimitStore, group string, rule RateLimitRule, lnurl bool, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			if lnurl {
				response.LNURLError(c, apperror.ErrRateLimitExceeded())
			} else {
				response.Error(c, apperror.ErrRateLimitExceeded())
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

func extractIdentifier(c *gin.Context) string {
	if id, ok := OperatorID(c); ok {
		return id.String()
	}
	return c.ClientIP()
}
