package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

// multipartOverhead is the allowance for form fields and boundaries on top of the media limit.
const multipartOverhead = 1 << 20

// submitBroadcast takes a multipart form with a "text" field and an optional "media" file.
func (h *handlers) submitBroadcast(c echo.Context) error {
	req := c.Request()
	if h.deps.MaxUploadBytes > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.deps.MaxUploadBytes+multipartOverhead)
	}

	text := c.FormValue("text")

	var upload *broadcast.Upload
	file, err := c.FormFile("media")
	switch {
	case err == nil:
		src, err := file.Open()
		if err != nil {
			return apperrors.NewValidationError("media cannot be read")
		}
		defer src.Close()
		upload = &broadcast.Upload{Name: file.Filename, Reader: src}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("media exceeds the upload limit")
		}
		return apperrors.NewValidationError("invalid multipart form")
	}

	status, err := h.deps.Broadcasts.Submit(req.Context(), actorID(c), text, upload)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, status)
}

func (h *handlers) broadcastStatus(c echo.Context) error {
	status, err := h.deps.Broadcasts.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}
