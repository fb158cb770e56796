package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/pkg/config"
)

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("connection refused")
}

func TestAllowMapsRejectionToRateLimitError(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(testLogger())
	rule := Rule{Limit: 2, Window: time.Minute}

	require.NoError(t, Allow(ctx, limiter, "api:1.2.3.4", rule))
	require.NoError(t, Allow(ctx, limiter, "api:1.2.3.4", rule))

	err := Allow(ctx, limiter, "api:1.2.3.4", rule)
	require.ErrorIs(t, err, apperrors.ErrRateLimit)

	require.NoError(t, Allow(ctx, limiter, "api:5.6.7.8", rule))
}

func TestAllowFailsOpen(t *testing.T) {
	assert.NoError(t, Allow(context.Background(), brokenLimiter{}, "k", Rule{Limit: 1, Window: time.Second}))
}

func TestAdaptiveLimiterFallsBackToStricterMemoryLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewAdaptiveLimiter(brokenLimiter{}, NewMemoryLimiter(testLogger()), testLogger())

	_, err := limiter.Check(ctx, "k", 4, time.Minute)
	require.NoError(t, err)
	_, err = limiter.Check(ctx, "k", 4, time.Minute)
	require.NoError(t, err)

	_, err = limiter.Check(ctx, "k", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Enabled:       true,
		APIRequests:   10,
		APIWindow:     time.Minute,
		LoginAttempts: 0,
		LoginWindow:   time.Minute,
		BotMessages:   5,
		BotWindow:     time.Second,
	}, []int64{42})

	rule, ok := rules.For(ScopeAPI)
	assert.True(t, ok)
	assert.Equal(t, Rule{Limit: 10, Window: time.Minute}, rule)

	_, ok = rules.For(ScopeLogin)
	assert.False(t, ok)

	assert.True(t, rules.IsWhitelisted(42))
	assert.False(t, rules.IsWhitelisted(43))
	assert.Equal(t, "bot:42", UserKey(ScopeBot, 42))

	disabled := NewRules(config.RateLimitConfig{APIRequests: 10, APIWindow: time.Minute}, nil)
	_, ok = disabled.For(ScopeAPI)
	assert.False(t, ok)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	c := newClock()
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = c.now

	_, err := limiter.Check(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)

	assert.Zero(t, limiter.Cleanup(time.Hour))

	c.advance(2 * time.Hour)
	assert.Equal(t, 1, limiter.Cleanup(time.Hour))

	result, err := limiter.Check(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
