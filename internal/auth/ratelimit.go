package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/nalauth/server/internal/repo"
)

// Decision is the outcome of a rate-limit check. RetryAfter is only set when
// the request was denied.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter gates requests per (subject, purpose) against storage-backed
// windows, so limits hold across processes. A storage failure is returned as
// an error and never read as "allowed".
type RateLimiter struct {
	repo   repo.RateLimitRepo
	window time.Duration
	max    int
}

// NewRateLimiter creates a limiter allowing max requests per window.
func NewRateLimiter(r repo.RateLimitRepo, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{repo: r, window: window, max: max}
}

// Allow checks the budget for (subject, purpose) and consumes one slot when
// available. Check and consume are one atomic storage operation.
func (l *RateLimiter) Allow(ctx context.Context, subject, purpose string) (Decision, error) {
	allowed, retryAfter, err := l.repo.ConsumeSlot(ctx, subject, purpose, l.window, l.max)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}
	return Decision{Allowed: allowed, RetryAfter: retryAfter}, nil
}
