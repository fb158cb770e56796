// Package ratelimit provides sliding-window limits for the HTTP API and the bot.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Allow checks key against rule. A rejection is returned as a RateLimit AppError
// carrying the seconds until the window resets. Limiter failures let the request through.
func Allow(ctx context.Context, limiter Limiter, key string, rule Rule) error {
	result, err := limiter.Check(ctx, key, rule.Limit, rule.Window)
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		return nil
	}
	if result != nil && result.Allowed && err == nil {
		return nil
	}

	retryAfter := 1
	if result != nil {
		if wait := time.Until(result.ResetAt); wait > 0 {
			retryAfter = int(math.Ceil(wait.Seconds()))
		}
	}

	return apperrors.NewRateLimitError(retryAfter)
}
