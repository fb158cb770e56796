// Package handlers implements the bot's command and state handlers.
package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/i18n"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Localizer picks a translator for a Telegram language code.
type Localizer interface {
	Translator(lang string) i18n.Translator
}

const contextKey = "request_ctx"

// WithContext attaches the update's request context to c.
func WithContext(c telebot.Context, ctx context.Context) {
	c.Set(contextKey, ctx)
}

// Context returns the request context attached by WithContext, or context.Background().
func Context(c telebot.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := c.Get(contextKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// Translator localizes for the sender's language.
func Translator(loc Localizer, c telebot.Context) i18n.Translator {
	lang := ""
	if c != nil && c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}
	return loc.Translator(lang)
}
