package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[apperrors.Kind]int{
	apperrors.KindNotFound:           http.StatusNotFound,
	apperrors.KindValidation:         http.StatusBadRequest,
	apperrors.KindUnauthorized:       http.StatusUnauthorized,
	apperrors.KindForbidden:          http.StatusForbidden,
	apperrors.KindConflict:           http.StatusConflict,
	apperrors.KindRateLimit:          http.StatusTooManyRequests,
	apperrors.KindStorageUnavailable: http.StatusServiceUnavailable,
}

// statusFor maps an error to its HTTP status. Unclassified errors are 500.
func statusFor(err error) int {
	if status, ok := kindStatus[apperrors.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func errorHandler(handler *apperrors.Handler) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			message := http.StatusText(httpErr.Code)
			if m, ok := httpErr.Message.(string); ok {
				message = m
			}
			_ = c.JSON(httpErr.Code, errorBody{Error: "http", Message: message})
			return
		}

		handler.Handle(c.Request().Context(), err)

		status := statusFor(err)
		body := errorBody{Error: string(apperrors.KindOf(err)), Message: err.Error()}
		if status == http.StatusInternalServerError {
			body = errorBody{Error: "internal", Message: "internal server error"}
		}
		if status == http.StatusServiceUnavailable {
			body.Message = "storage unavailable"
		}

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}
