// Package config provides configuration loading and validation utilities.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("bot.token", "")
	v.SetDefault("bot.offline", false)
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.webhook_url", "")
	v.SetDefault("bot.mini_app_url", "")
	v.SetDefault("bot.admin_ids", []int64{})
	v.SetDefault("bot.poll_timeout", 10*time.Second)
	v.SetDefault("bot.language", "ru")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_upload_bytes", 50<<20)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.connect_attempts", 10)
	v.SetDefault("database.connect_delay", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jobs.enabled", false)
	v.SetDefault("jobs.concurrency", 2)
	v.SetDefault("jobs.queue", "broadcasts")
	v.SetDefault("jobs.sweep_spec", "@every 1h")

	v.SetDefault("admin.password", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.session_secret", "")
	v.SetDefault("admin.session_ttl", 12*time.Hour)
	v.SetDefault("admin.actor_id", 0)

	v.SetDefault("purchases.mode", "simulated")
	v.SetDefault("purchases.bundle_policy", "idempotent")
	v.SetDefault("purchases.discount", 0.8)

	v.SetDefault("broadcast.rate_per_second", 30.0)
	v.SetDefault("broadcast.max_retries", 2)
	v.SetDefault("broadcast.retry_backoff", 500*time.Millisecond)
	v.SetDefault("broadcast.include_unreachable", false)
	v.SetDefault("broadcast.media_dir", os.TempDir())
	v.SetDefault("broadcast.media_ttl", 6*time.Hour)
	v.SetDefault("broadcast.timeout", 2*time.Hour)
	v.SetDefault("broadcast.local_workers", 1)
	v.SetDefault("broadcast.status_ttl", 7*24*time.Hour)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "")
	v.SetDefault("events.exchange", "quiz.events")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.api_requests", 120)
	v.SetDefault("rate_limit.api_window", time.Minute)
	v.SetDefault("rate_limit.login_attempts", 5)
	v.SetDefault("rate_limit.login_window", 15*time.Minute)
	v.SetDefault("rate_limit.bot_messages", 20)
	v.SetDefault("rate_limit.bot_window", time.Minute)
}

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
// A missing YAML file is not an error: defaults and environment variables still apply.
func Load() (*Config, *viper.Viper, error) {
	// .env files are optional
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)
	v.SetDefault("app_env", env)
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if cfg.Admin.Password == "" && cfg.Admin.PasswordHash == "" {
		return errors.New("validate config: admin.password or admin.password_hash is required")
	}

	return nil
}

// Watch re-reads the config file on change and passes the validated result to onChange.
// Invalid edits are logged and ignored.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Warn("ignoring invalid config change", slog.String("file", e.Name), slog.Any("error", err))
			return
		}

		log.Info("config reloaded", slog.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}
