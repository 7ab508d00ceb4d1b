package ratelimit

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"agency-server/internal/apiresponse"
	"agency-server/internal/observability"
)

// Middleware creates a Gin middleware for rate limiting. It runs after the
// auth middleware and keys the window on the authenticated staff user. A
// failed Redis round trip lets the request through rather than taking the
// dashboard down with it.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		userID := c.GetString("User-ID")
		if userID == "" {
			c.Next()
			return
		}

		result, err := s.Check(ctx, userID)
		if err != nil {
			s.logger.Error(ctx, "rate limit check failed, allowing request", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", result.RetryAfter))
			warnCtx := observability.WithFields(ctx,
				observability.Field{Key: "user_id", Value: userID},
				observability.Field{Key: "limit", Value: result.Limit},
			)
			s.logger.Warn(warnCtx, "rate limit exceeded")
			apiresponse.RateLimited(c, "rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
