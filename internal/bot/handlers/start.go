package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/keyboard"
)

// NewStartHandler greets the user with the Mini App button. The user record is created by the registration middleware.
func NewStartHandler(kb *keyboard.Builder, loc Localizer, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		tr := Translator(loc, c)

		if !kb.HasMiniApp() {
			log.Warn("start requested but mini app url is not configured")
			return c.Send(tr.T("start.no_app"))
		}

		return c.Send(tr.T("start.welcome"), kb.MiniApp(tr.T("start.button")))
	}
}

func NewHelpHandler(loc Localizer) Handler {
	return func(c telebot.Context) error {
		return c.Send(Translator(loc, c).T("help.text"))
	}
}

// NewHintHandler answers any message no other handler claimed.
func NewHintHandler(loc Localizer) Handler {
	return func(c telebot.Context) error {
		return c.Send(Translator(loc, c).T("hint"))
	}
}
