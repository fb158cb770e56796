package errors

import (
	"errors"
	"net"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// Provider messages that mean the recipient will never accept messages from the bot.
var permanentSignatures = []string{
	"bot was blocked by the user",
	"user is deactivated",
}

// IsPermanentDeliveryFailure reports whether err means the recipient is unreachable for good.
func IsPermanentDeliveryFailure(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrUserIsDeactivated) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range permanentSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}

	return false
}

// IsTransientDeliveryFailure reports whether a failed send is worth repeating.
func IsTransientDeliveryFailure(err error) bool {
	if err == nil || IsPermanentDeliveryFailure(err) {
		return false
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "too many requests") || strings.Contains(msg, "retry after")
}
