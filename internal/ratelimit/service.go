package ratelimit

import (
	"context"
	"fmt"
	"time"

	"agency-server/internal/clients/redis"
	"agency-server/internal/observability"
)

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds
}

// Service enforces a fixed-window per-user request limit backed by Redis.
// Without Redis the service fails open: the dashboard keeps working, just
// without throttling.
type Service struct {
	redis  *redis.Client
	limit  int
	logger *observability.Logger
}

const window = time.Minute

// NewService creates a new rate limiting service. limit is requests per
// minute per staff user.
func NewService(redisClient *redis.Client, limit int, logger *observability.Logger) *Service {
	return &Service{
		redis:  redisClient,
		limit:  limit,
		logger: logger,
	}
}

// Check counts a request against the caller's current window.
func (s *Service) Check(ctx context.Context, userID string) (Result, error) {
	now := time.Now()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)

	if s.redis == nil || !s.redis.IsEnabled() {
		return Result{Allowed: true, Limit: s.limit, Remaining: s.limit, ResetAt: resetAt}, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%d", userID, windowStart.Unix())
	count, err := s.redis.Incr(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		// First hit in the window owns the expiry.
		if err := s.redis.Expire(ctx, key, window); err != nil {
			s.logger.Error(ctx, "failed to set rate limit expiry", err)
		}
	}

	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	result := Result{
		Allowed:   int(count) <= s.limit,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = int(resetAt.Sub(now).Seconds()) + 1
	}
	return result, nil
}
