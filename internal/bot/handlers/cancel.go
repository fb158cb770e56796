package handlers

import (
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/state"
)

// NewCancelHandler drops any pending dialog and returns the user to idle.
// It serves both the /cancel command and the inline cancel button.
func NewCancelHandler(fsm state.StateMachine, loc Localizer, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		if c.Sender() == nil {
			log.Warn("cancel handler invoked without sender context")
			return nil
		}

		ctx := Context(c)
		userID := c.Sender().ID
		tr := Translator(loc, c)

		if c.Callback() != nil {
			_ = c.Respond()
		}

		current, err := fsm.GetState(ctx, userID)
		switch {
		case errors.Is(err, state.ErrStateNotFound):
			return c.Send(tr.T("admin.nothing_to_cancel"))
		case err != nil:
			return err
		case current == nil || current.CurrentState == state.StateIdle:
			return c.Send(tr.T("admin.nothing_to_cancel"))
		}

		if err := fsm.ClearState(ctx, userID); err != nil {
			log.Error("failed to clear user state", slog.Int64("telegram_id", userID), slog.Any("error", err))
			return err
		}

		return c.Send(tr.T("admin.cancelled"))
	}
}
