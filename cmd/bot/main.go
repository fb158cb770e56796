package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/access"
	"github.com/zanti495-bot/web-bot-outloud/internal/admin"
	"github.com/zanti495-bot/web-bot-outloud/internal/bot"
	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/catalog"
	"github.com/zanti495-bot/web-bot-outloud/internal/database"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/events"
	"github.com/zanti495-bot/web-bot-outloud/internal/health"
	"github.com/zanti495-bot/web-bot-outloud/internal/httpapi"
	"github.com/zanti495-bot/web-bot-outloud/internal/i18n"
	"github.com/zanti495-bot/web-bot-outloud/internal/jobs"
	jobhandlers "github.com/zanti495-bot/web-bot-outloud/internal/jobs/handlers"
	"github.com/zanti495-bot/web-bot-outloud/internal/ledger"
	"github.com/zanti495-bot/web-bot-outloud/internal/lifecycle"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
	"github.com/zanti495-bot/web-bot-outloud/internal/state"
	"github.com/zanti495-bot/web-bot-outloud/internal/user"
	"github.com/zanti495-bot/web-bot-outloud/internal/usercache"
	"github.com/zanti495-bot/web-bot-outloud/pkg/config"
	"github.com/zanti495-bot/web-bot-outloud/pkg/graceful"
	"github.com/zanti495-bot/web-bot-outloud/pkg/logger"
	redisclient "github.com/zanti495-bot/web-bot-outloud/pkg/redis"
)

const (
	stateTTL         = 24 * time.Hour
	userCacheTTL     = time.Hour
	limiterSweep     = time.Minute
	limiterMaxAge    = 30 * time.Minute
	shutdownGrace    = 5 * time.Second
	sentryFlushDelay = 2 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("quiz bot stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := lifecycle.NotifyContext(context.Background())
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: orDefault(cfg.Sentry.Environment, cfg.AppEnv),
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(sentryFlushDelay)
	}

	level := new(slog.LevelVar)
	level.Set(logger.ParseLevel(cfg.Logger.Level))
	log := logger.New(*cfg, level)
	slog.SetDefault(log)

	config.Watch(v, log, func(next *config.Config) {
		level.Set(logger.ParseLevel(next.Logger.Level))
		log.Info("log level applied, other settings take effect on restart", slog.String("level", next.Logger.Level))
	})

	log.Info("starting quiz bot",
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.Bool("offline", cfg.Bot.Offline),
		slog.String("storage", cfg.Database.Driver),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)

	store, err := openStore(ctx, cfg.Database, shutdown, log)
	if err != nil {
		return err
	}
	checker.AddCheck("database", health.CheckFunc(store.Ping))

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		shutdown.RegisterPhase(lifecycle.PhaseResources, "redis", func(context.Context) error {
			return redisClient.Close()
		})
		checker.AddCheck("redis", health.NewRedisChecker(redisClient))
	}
	if cfg.Jobs.Enabled && redisClient == nil {
		return errors.New("jobs.enabled requires redis.enabled")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange, log)
	}
	shutdown.RegisterPhase(lifecycle.PhaseResources, "events", func(context.Context) error {
		return publisher.Close()
	})

	loc, err := i18n.Load(cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	users := user.NewService(store.Users(), usercache.NewCache(redisClient, userCacheTTL), log)
	catalogService := catalog.NewService(store, log)
	resolver := access.NewResolver(store, log)

	policy, err := ledger.ParseBundlePolicy(cfg.Purchases.BundlePolicy)
	if err != nil {
		return err
	}
	purchases := ledger.New(store, publisher, ledger.Config{
		Mode:     ledger.Mode(cfg.Purchases.Mode),
		Policy:   policy,
		Discount: cfg.Purchases.Discount,
	}, log)

	var revoked admin.Revocations
	if redisClient != nil {
		revoked = admin.NewRedisRevocations(redisClient)
	}
	auth, err := admin.NewPasswordAuthenticator(admin.Config{
		Password:      cfg.Admin.Password,
		PasswordHash:  cfg.Admin.PasswordHash,
		SessionSecret: cfg.Admin.SessionSecret,
		SessionTTL:    cfg.Admin.SessionTTL,
		ActorID:       cfg.Admin.ActorID,
		Revoked:       revoked,
	}, store.Audit(), log)
	if err != nil {
		return err
	}

	limiter, memoryLimiter := newLimiter(redisClient, log)
	go ratelimit.NewCleaner(memoryLimiter, log, limiterSweep, limiterMaxAge).Run(ctx)
	rules := ratelimit.NewRules(cfg.RateLimit, cfg.Bot.AdminIDs)

	client, err := bot.NewClient(cfg.Bot, log)
	if err != nil {
		return err
	}
	if !cfg.Bot.Offline {
		checker.AddCheck("telegram", health.NewTelegramChecker(client))
	}

	broadcasts, err := newBroadcasts(ctx, cfg, store, redisClient, client, publisher, shutdown, log)
	if err != nil {
		return err
	}

	var fsmStorage state.Storage = state.NewMemoryStorage(stateTTL)
	if redisClient != nil {
		fsmStorage = state.NewRedisStorage(redisClient, stateTTL, log)
	}

	tgBot, err := bot.New(client, cfg.Bot, bot.Deps{
		Users:      users,
		Stats:      catalogService,
		Broadcasts: broadcasts,
		FSM:        state.NewStateMachine(fsmStorage, log, redisClient),
		Limiter:    limiter,
		Rules:      rules,
		Localizer:  loc,
		Errors:     errHandler,
	}, log)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Catalog:        catalogService,
		Access:         resolver,
		Ledger:         purchases,
		Users:          users,
		Auth:           auth,
		Broadcasts:     broadcasts,
		Health:         checker,
		Limiter:        limiter,
		Rules:          rules,
		Errors:         errHandler,
		Webhook:        tgBot.Webhook(),
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		SecureCookies:  cfg.AppEnv == "production",
	}, log)

	server := graceful.NewServer(cfg.HTTP, api, log)
	serveCtx, stopServing := context.WithCancel(context.Background())
	served := make(chan struct{})
	var serveErr error
	go func() {
		defer close(served)
		serveErr = server.ListenAndServe(serveCtx)
	}()
	shutdown.Register("http", func(ctx context.Context) error {
		stopServing()
		select {
		case <-served:
			return serveErr
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go tgBot.Start()
	shutdown.Register("bot", func(context.Context) error {
		tgBot.Stop()
		return nil
	})

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-served:
		runErr = serveErr
		log.Error("http server stopped unexpectedly", slog.Any("error", runErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout+shutdownGrace)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("quiz bot stopped")
	return runErr
}

// openStore connects the configured storage backend and applies pending migrations.
func openStore(ctx context.Context, cfg config.DatabaseConfig, shutdown *lifecycle.Shutdown, log *slog.Logger) (repository.Store, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	shutdown.RegisterPhase(lifecycle.PhaseResources, "database", func(context.Context) error {
		return db.Close()
	})

	if err := database.NewMigrator(db, log).Apply(ctx, database.Migrations()); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return repository.NewPostgresStore(db, log), nil
}

// newLimiter prefers Redis and falls back to process memory when Redis is absent or failing.
func newLimiter(redisClient *goredis.Client, log *slog.Logger) (ratelimit.Limiter, *ratelimit.MemoryLimiter) {
	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	if redisClient == nil {
		return memoryLimiter, memoryLimiter
	}

	return ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(redisClient, log), memoryLimiter, log), memoryLimiter
}

// newBroadcasts assembles the broadcast service. With jobs enabled the runs go through the asynq queue
// and a worker in this process; otherwise they run on local goroutines.
func newBroadcasts(
	ctx context.Context,
	cfg *config.Config,
	store repository.Store,
	redisClient *goredis.Client,
	client *telebot.Bot,
	publisher events.Publisher,
	shutdown *lifecycle.Shutdown,
	log *slog.Logger,
) (*broadcast.Service, error) {
	stager := broadcast.NewStager(cfg.Broadcast.MediaDir, cfg.HTTP.MaxUploadBytes)
	dispatcher := broadcast.NewDispatcher(store, broadcast.NewTelebotSender(client), stager, publisher, broadcast.Config{
		RatePerSecond:      cfg.Broadcast.RatePerSecond,
		MaxRetries:         cfg.Broadcast.MaxRetries,
		RetryBackoff:       cfg.Broadcast.RetryBackoff,
		IncludeUnreachable: cfg.Broadcast.IncludeUnreachable,
	}, log)

	var statuses broadcast.StatusStore = broadcast.NewMemoryStatusStore()
	if redisClient != nil {
		statuses = broadcast.NewRedisStatusStore(redisClient, cfg.Broadcast.StatusTTL)
	}

	if !cfg.Jobs.Enabled {
		runner := broadcast.NewLocalRunner(ctx, cfg.Broadcast.LocalWorkers, cfg.Broadcast.Timeout, log)
		service := broadcast.NewService(dispatcher, runner, statuses, stager, log)
		runner.Handle(service.Execute)
		runner.OnDrop(service.Drop)

		go sweepMedia(ctx, stager, cfg.Broadcast.MediaTTL, log)
		shutdown.Register("broadcasts", func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				runner.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		return service, nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}

	manager := jobs.NewManager(redisOpt, log)
	runner := jobs.NewQueueRunner(manager, cfg.Jobs.Queue, cfg.Broadcast.Timeout, log)
	service := broadcast.NewService(dispatcher, runner, statuses, stager, log)

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Queue, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeBroadcastSend, jobhandlers.NewBroadcastHandler(service.Execute, log))
	worker.RegisterHandler(jobs.TaskTypeSweepMedia, jobhandlers.NewSweepHandler(stager, log))

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.SweepSpec, cfg.Jobs.Queue, cfg.Broadcast.MediaTTL, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, fmt.Errorf("register scheduled tasks: %w", err)
	}

	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
		}
	}()
	scheduler.Run()

	shutdown.Register("jobs", func(context.Context) error {
		scheduler.Shutdown()
		worker.Shutdown()
		return nil
	})
	shutdown.RegisterPhase(lifecycle.PhaseResources, "jobs_client", func(context.Context) error {
		return manager.Close()
	})

	return service, nil
}

// sweepMedia removes staged attachments older than maxAge until ctx ends.
func sweepMedia(ctx context.Context, stager *broadcast.Stager, maxAge time.Duration, log *slog.Logger) {
	if maxAge <= 0 {
		return
	}

	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := stager.Sweep(maxAge, now)
			if err != nil {
				log.Warn("media sweep failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				log.Info("stale broadcast media removed", slog.Int("files", removed))
			}
		}
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
