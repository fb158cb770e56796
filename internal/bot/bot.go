// Package bot wires the Telegram update flow: telebot settings, the handler chain and routing.
package bot

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/handlers"
	"github.com/zanti495-bot/web-bot-outloud/internal/bot/keyboard"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/middleware"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
	"github.com/zanti495-bot/web-bot-outloud/internal/state"
	"github.com/zanti495-bot/web-bot-outloud/internal/user"
	"github.com/zanti495-bot/web-bot-outloud/pkg/config"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Deps are the services the bot handlers call into.
type Deps struct {
	Users      *user.Service
	Stats      handlers.StatsSource
	Broadcasts handlers.Submitter
	FSM        state.StateMachine
	Limiter    ratelimit.Limiter
	Rules      *ratelimit.Rules
	Localizer  handlers.Localizer
	Errors     *apperrors.Handler
}

// Bot wraps telebot.Bot with the application's routing.
type Bot struct {
	telebot *telebot.Bot
	webhook *telebot.Webhook
	cfg     config.BotConfig
	router  *Router
	log     *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewClient builds the telebot client. In webhook mode its poller only accepts updates served through
// Bot.Webhook, which the HTTP server mounts. An offline client makes no Telegram calls.
func NewClient(cfg config.BotConfig, log *slog.Logger) (*telebot.Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		OnError: func(err error, _ telebot.Context) {
			log.Error("telebot error", slog.String("component", "bot"), slog.Any("error", err))
		},
	}

	if cfg.Mode == ModeWebhook {
		settings.Poller = &telebot.Webhook{
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{Timeout: cfg.PollTimeout}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return tb, nil
}

// New registers the handler chain on client.
func New(client *telebot.Bot, cfg config.BotConfig, deps Deps, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "bot"))

	if client == nil {
		return nil, fmt.Errorf("initialize bot: telebot client is required")
	}
	if deps.FSM == nil {
		return nil, fmt.Errorf("initialize bot: state machine is required")
	}
	if deps.Localizer == nil {
		return nil, fmt.Errorf("initialize bot: localizer is required")
	}

	webhook, _ := client.Poller.(*telebot.Webhook)

	b := &Bot{
		telebot: client,
		webhook: webhook,
		cfg:     cfg,
		log:     log,
	}
	b.router = newRouter(cfg, deps, client, log)

	for _, endpoint := range []string{telebot.OnText, telebot.OnPhoto, telebot.OnVideo, telebot.OnDocument, telebot.OnCallback} {
		client.Handle(endpoint, b.router.Route)
	}

	return b, nil
}

// newRouter registers every command, callback and state handler on a fresh router.
func newRouter(cfg config.BotConfig, deps Deps, files handlers.FileFetcher, log *slog.Logger) *Router {
	kb := keyboard.NewBuilder(cfg.MiniAppURL, log)
	dispatcher := NewDispatcher(deps.FSM, log)
	router := NewRouter(dispatcher, log)

	router.Use(RecoveryMiddleware(log, deps.Errors, deps.Localizer))
	router.Use(middleware.Logging(log))
	router.Use(ErrorHandlingMiddleware(deps.Errors, deps.Localizer))
	router.Use(RegistrationMiddleware(deps.Users))
	router.Use(middleware.Metrics)
	router.Use(middleware.RateLimit(deps.Limiter, deps.Rules, deps.Localizer, log))

	adminOnly := func(h handlers.Handler) handlers.Handler {
		return AdminOnly(cfg.IsAdmin, deps.Localizer, h)
	}
	cancel := handlers.NewCancelHandler(deps.FSM, deps.Localizer, log)

	router.RegisterCommand(CommandStart, handlers.NewStartHandler(kb, deps.Localizer, log))
	router.RegisterCommand(CommandHelp, handlers.NewHelpHandler(deps.Localizer))
	router.RegisterCommand(CommandCancel, cancel)
	router.RegisterCallback(keyboard.CallbackCancel, handlers.CallbackHandler(cancel))

	if deps.Stats != nil {
		router.RegisterCommand(CommandStats, adminOnly(handlers.NewStatsHandler(deps.Stats, deps.Localizer)))
	}
	if deps.Broadcasts != nil {
		router.RegisterCommand(CommandBroadcast, adminOnly(handlers.NewBroadcastPromptHandler(deps.FSM, kb, deps.Localizer)))
		dispatcher.RegisterStateHandler(state.StateAwaitingBroadcast,
			adminOnly(handlers.NewBroadcastMessageHandler(deps.FSM, deps.Broadcasts, files, deps.Localizer, log)))
	}

	router.SetDefault(handlers.NewHintHandler(deps.Localizer))

	return router
}

// Start begins receiving updates and blocks until Stop. An offline bot returns immediately.
func (b *Bot) Start() {
	if b.cfg.Offline {
		b.log.Info("bot is offline, updates are not received")
		return
	}

	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	b.log.Info("bot started", slog.String("mode", b.mode()))
	b.telebot.Start()
}

// Stop halts update processing. It is a no-op for a bot that never started.
func (b *Bot) Stop() {
	b.mu.Lock()
	started := b.started
	b.started = false
	b.mu.Unlock()

	if started {
		b.telebot.Stop()
	}
}

// Telebot exposes the underlying client for senders and file downloads.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Webhook returns the update endpoint in webhook mode and nil otherwise.
func (b *Bot) Webhook() http.Handler {
	if b.webhook == nil {
		return nil
	}
	return b.webhook
}

// Route runs a single update through the handler chain.
func (b *Bot) Route(c telebot.Context) error {
	return b.router.Route(c)
}

func (b *Bot) mode() string {
	if b.webhook != nil {
		return ModeWebhook
	}
	return ModePolling
}
