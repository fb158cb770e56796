package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zanti495-bot/web-bot-outloud/pkg/config"
)

// Scope separates counters of unrelated limits for the same client.
type Scope string

const (
	ScopeAPI   Scope = "api"
	ScopeLogin Scope = "login"
	ScopeBot   Scope = "bot"
)

// Rule is a sliding-window allowance. A zero Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	enabled   bool
	rules     map[Scope]Rule
	whitelist map[int64]struct{}
}

// NewRules constructs rate limiting rules from configuration settings.
// Whitelisted Telegram ids, usually the admins, bypass the bot limit.
func NewRules(cfg config.RateLimitConfig, whitelist []int64) *Rules {
	wl := make(map[int64]struct{}, len(whitelist))
	for _, id := range whitelist {
		wl[id] = struct{}{}
	}

	return &Rules{
		enabled: cfg.Enabled,
		rules: map[Scope]Rule{
			ScopeAPI:   {Limit: cfg.APIRequests, Window: cfg.APIWindow},
			ScopeLogin: {Limit: cfg.LoginAttempts, Window: cfg.LoginWindow},
			ScopeBot:   {Limit: cfg.BotMessages, Window: cfg.BotWindow},
		},
		whitelist: wl,
	}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	if r == nil {
		return false
	}
	_, ok := r.whitelist[userID]
	return ok
}

// For returns the rule of a scope and whether it is enforced.
func (r *Rules) For(scope Scope) (Rule, bool) {
	if r == nil || !r.enabled {
		return Rule{}, false
	}

	rule, ok := r.rules[scope]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Rule{}, false
	}

	return rule, true
}

// Key builds the limiter key for a client within a scope.
func Key(scope Scope, client string) string {
	return fmt.Sprintf("%s:%s", scope, client)
}

// UserKey is Key for a Telegram user id.
func UserKey(scope Scope, userID int64) string {
	return Key(scope, strconv.FormatInt(userID, 10))
}
