// Package middleware holds the cross-cutting wrappers of the bot handler chain.
package middleware

import (
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/handlers"
	"github.com/zanti495-bot/web-bot-outloud/pkg/logger"
)

// Logging attaches a correlation id to the update and logs its handling.
func Logging(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			ctx := logger.WithCorrelationID(handlers.Context(c), "")
			handlers.WithContext(c, ctx)

			userID := int64(0)
			if c.Sender() != nil {
				userID = c.Sender().ID
			}

			err := next(c)
			log.InfoContext(ctx, "handled update",
				slog.Int64("telegram_id", userID),
				slog.String("action", commandName(c)),
				slog.Duration("duration", time.Since(start)),
				slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
				slog.Any("error", err),
			)

			return err
		}
	}
}
