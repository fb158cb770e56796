package middleware

import (
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/handlers"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
)

// RateLimit enforces the per-user bot limit. Whitelisted users, the admins, are never limited.
func RateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, loc handlers.Localizer, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			rule, enforced := rules.For(ratelimit.ScopeBot)
			sender := c.Sender()
			if limiter == nil || !enforced || sender == nil || rules.IsWhitelisted(sender.ID) {
				return next(c)
			}

			err := ratelimit.Allow(handlers.Context(c), limiter, ratelimit.UserKey(ratelimit.ScopeBot, sender.ID), rule)
			if errors.Is(err, apperrors.ErrRateLimit) {
				log.Warn("rate limit exceeded", slog.Int64("telegram_id", sender.ID))
				return c.Send(handlers.Translator(loc, c).T("errors.rate_limited"))
			}

			return next(c)
		}
	}
}
