package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zanti495-bot/web-bot-outloud/internal/health"
)

// health answers 200 when every component is OK and 503 otherwise.
func (h *handlers) health(c echo.Context) error {
	if h.deps.Health == nil {
		return c.JSON(http.StatusOK, health.Report{Status: health.StatusOK, Components: map[string]string{}})
	}

	report := h.deps.Health.Check(c.Request().Context())
	status := http.StatusOK
	if report.Status != health.StatusOK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}
