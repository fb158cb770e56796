package httpapi

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zanti495-bot/web-bot-outloud/internal/admin"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
	"github.com/zanti495-bot/web-bot-outloud/pkg/logger"
	"github.com/zanti495-bot/web-bot-outloud/pkg/metrics"
)

const actorKey = "actor_id"

// requestLogger handles the error itself so the logged status is the one sent.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			elapsed := time.Since(start)
			metrics.RecordHTTPRequest(req.Method, c.Path(), status, elapsed)

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			log.LogAttrs(req.Context(), level, "http request",
				slog.String("method", req.Method),
				slog.String("route", c.Path()),
				slog.Int("status", status),
				slog.Duration("duration", elapsed),
				slog.String("correlation_id", logger.CorrelationIDFromContext(req.Context())),
			)

			return nil
		}
	}
}

// rateLimit applies the scope's rule per client IP. A nil limiter or a disabled rule lets everything through.
func rateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, scope ratelimit.Scope) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rule, ok := rules.For(scope)
			if limiter == nil || !ok {
				return next(c)
			}

			key := ratelimit.Key(scope, c.RealIP())
			if err := ratelimit.Allow(c.Request().Context(), limiter, key, rule); err != nil {
				return err
			}

			return next(c)
		}
	}
}

// requireSession accepts the session cookie or an Authorization Bearer token.
func requireSession(auth admin.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := sessionToken(c)
			if token == "" {
				return apperrors.NewUnauthorizedError("missing session")
			}

			claims, err := auth.Verify(c.Request().Context(), token)
			if err != nil {
				return err
			}

			actorID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				return apperrors.NewUnauthorizedError("invalid session subject")
			}
			c.Set(actorKey, actorID)

			return next(c)
		}
	}
}

// sessionToken prefers the Authorization header over the cookie.
func sessionToken(c echo.Context) string {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(admin.CookieName); err == nil {
		return cookie.Value
	}

	return ""
}

func actorID(c echo.Context) int64 {
	id, _ := c.Get(actorKey).(int64)
	return id
}
