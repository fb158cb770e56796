package keyboard

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"
)

// CallbackDataLimitBytes is the Bot API limit for callback data.
const CallbackDataLimitBytes = 64

// InlineButton is a button definition. Callback data is Unique, or "Unique:Data" when Data is set.
type InlineButton struct {
	Text   string
	Unique string
	Data   string
}

// callbackData is kept free of telebot's "\f" unique prefix so the router can match it by prefix.
func (b InlineButton) callbackData() string {
	switch {
	case b.Data == "":
		return b.Unique
	case b.Unique == "":
		return b.Data
	default:
		return b.Unique + ":" + b.Data
	}
}

// InlineKeyboardBuilder accumulates rows of InlineButton definitions before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{}
}

// AddRow appends a row. Empty rows are ignored.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build renders the markup. It fails when a button's callback data exceeds the Bot API limit.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	keyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		keyboard[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			data := btn.callbackData()
			if len(data) > CallbackDataLimitBytes {
				return nil, fmt.Errorf("callback data for %q is %d bytes, limit is %d", btn.Text, len(data), CallbackDataLimitBytes)
			}
			keyboard[i][j] = telebot.InlineButton{Text: btn.Text, Data: data}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: keyboard}, nil
}
