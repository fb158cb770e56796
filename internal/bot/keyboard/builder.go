// Package keyboard builds the bot's reply and inline markups.
package keyboard

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"
)

// CallbackCancel is the callback data of the cancel button.
const CallbackCancel = "cancel"

// Builder creates the markups used by the bot handlers.
type Builder struct {
	miniAppURL string
	log        *slog.Logger
}

func NewBuilder(miniAppURL string, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}

	return &Builder{miniAppURL: miniAppURL, log: log}
}

// HasMiniApp reports whether a Mini App URL is configured.
func (b *Builder) HasMiniApp() bool {
	return b.miniAppURL != ""
}

// MiniApp builds a resized reply keyboard with one button that opens the Mini App.
func (b *Builder) MiniApp(label string) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		ResizeKeyboard: true,
		ReplyKeyboard: [][]telebot.ReplyButton{
			{
				{
					Text:   label,
					WebApp: &telebot.WebApp{URL: b.miniAppURL},
				},
			},
		},
	}
}

// CancelButton builds a single inline cancel button. It returns nil if the markup cannot be built.
func (b *Builder) CancelButton(label string) *telebot.ReplyMarkup {
	markup, err := NewInlineKeyboard().
		AddRow(InlineButton{Text: label, Unique: CallbackCancel}).
		Build()
	if err != nil {
		b.log.Error("cancel keyboard not built", slog.Any("error", err))
		return nil
	}

	return markup
}
