package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/handlers"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/user"
)

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, loc handlers.Localizer) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					if errHandler != nil {
						errHandler.Handle(handlers.Context(c), fmt.Errorf("panic recovered: %v", r))
					}
					if sendErr := c.Send(handlers.Translator(loc, c).T("errors.generic")); sendErr != nil {
						log.Error("failed to notify user about panic", slog.Any("error", sendErr))
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware reports handler failures and answers with the error's user message,
// falling back to the localized generic text.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, loc handlers.Localizer) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if errHandler != nil {
				errHandler.Handle(handlers.Context(c), err)
			}

			userMsg := handlers.Translator(loc, c).T("errors.generic")
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.UserMessage != "" {
				userMsg = appErr.UserMessage
			}

			_ = c.Send(userMsg)

			return nil
		}
	}
}

// RegistrationMiddleware makes sure every sender has a user record before any handler runs.
func RegistrationMiddleware(users *user.Service) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			if users == nil || c.Sender() == nil || c.Sender().IsBot {
				return next(c)
			}

			if _, err := users.EnsureUser(handlers.Context(c), c.Sender()); err != nil {
				return err
			}

			return next(c)
		}
	}
}

// AdminOnly lets only configured administrators through.
func AdminOnly(isAdmin func(int64) bool, loc handlers.Localizer, h handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil || !isAdmin(c.Sender().ID) {
			return c.Send(handlers.Translator(loc, c).T("errors.forbidden"))
		}
		return h(c)
	}
}
