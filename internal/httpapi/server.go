// Package httpapi serves the Mini App API, the admin API and the infrastructure endpoints on echo.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/zanti495-bot/web-bot-outloud/internal/access"
	"github.com/zanti495-bot/web-bot-outloud/internal/admin"
	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/catalog"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/health"
	"github.com/zanti495-bot/web-bot-outloud/internal/ledger"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
	"github.com/zanti495-bot/web-bot-outloud/internal/user"
	"github.com/zanti495-bot/web-bot-outloud/pkg/logger"
	"github.com/zanti495-bot/web-bot-outloud/pkg/metrics"
)

// Broadcaster accepts admin broadcasts and reports their progress.
type Broadcaster interface {
	Submit(ctx context.Context, actorID int64, text string, upload *broadcast.Upload) (broadcast.Status, error)
	Status(ctx context.Context, id string) (broadcast.Status, error)
}

// Deps are the services behind the routes. Limiter, Health and Webhook are optional.
type Deps struct {
	Catalog    *catalog.Service
	Access     *access.Resolver
	Ledger     *ledger.Ledger
	Users      *user.Service
	Auth       admin.Authenticator
	Broadcasts Broadcaster
	Health     *health.Checker
	Limiter    ratelimit.Limiter
	Rules      *ratelimit.Rules
	Errors     *apperrors.Handler
	Webhook    http.Handler

	MaxUploadBytes int64
	SecureCookies  bool
}

// New builds the echo instance with every route registered.
func New(deps Deps, log *slog.Logger) *echo.Echo {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "httpapi"))
	if deps.Errors == nil {
		deps.Errors = apperrors.NewHandler(log, false)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(deps.Errors)

	e.Use(middleware.Recover())
	e.Use(echo.WrapMiddleware(logger.Middleware))
	e.Use(requestLogger(log))

	h := &handlers{deps: deps, log: log}

	e.GET("/health", h.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	if deps.Webhook != nil {
		e.POST("/webhook", echo.WrapHandler(deps.Webhook))
	}

	api := e.Group("/api", rateLimit(deps.Limiter, deps.Rules, ratelimit.ScopeAPI))
	api.GET("/design", h.design)
	api.GET("/blocks", h.blocks)
	api.GET("/questions", h.questions)
	api.POST("/log_view", h.logView)
	api.GET("/all_blocks_price", h.allBlocksPrice)
	api.POST("/create_invoice", h.createInvoice)

	e.POST("/admin/login", h.login, rateLimit(deps.Limiter, deps.Rules, ratelimit.ScopeLogin))
	e.POST("/admin/logout", h.logout)

	panel := e.Group("/admin", requireSession(deps.Auth))
	panel.GET("/stats", h.stats)
	panel.GET("/blocks", h.listBlocks)
	panel.POST("/blocks", h.createBlock)
	panel.GET("/blocks/:id", h.getBlock)
	panel.PUT("/blocks/:id", h.updateBlock)
	panel.DELETE("/blocks/:id", h.deleteBlock)
	panel.GET("/blocks/:id/questions", h.listQuestions)
	panel.POST("/blocks/:id/questions", h.createQuestion)
	panel.GET("/questions/:id", h.getQuestion)
	panel.PUT("/questions/:id", h.updateQuestion)
	panel.DELETE("/questions/:id", h.deleteQuestion)
	panel.GET("/design", h.getDesign)
	panel.PUT("/design", h.updateDesign)
	panel.GET("/audit", h.audit)
	panel.DELETE("/audit", h.clearAudit)
	panel.DELETE("/views", h.purgeViews)
	panel.GET("/users/export", h.exportUsers)
	panel.POST("/broadcasts", h.submitBroadcast)
	panel.GET("/broadcasts/:id", h.broadcastStatus)

	return e
}

type handlers struct {
	deps Deps
	log  *slog.Logger
}
