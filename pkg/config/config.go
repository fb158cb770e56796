package config

import "time"

// Config holds runtime configuration for the quiz bot and its admin API.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Bot       BotConfig       `mapstructure:"bot"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Purchases PurchasesConfig `mapstructure:"purchases"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type BotConfig struct {
	Token       string        `mapstructure:"token" validate:"required_unless=Offline true"`
	Offline     bool          `mapstructure:"offline"`
	Mode        string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	WebhookURL  string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
	MiniAppURL  string        `mapstructure:"mini_app_url"`
	AdminIDs    []int64       `mapstructure:"admin_ids"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Language    string        `mapstructure:"language" validate:"oneof=ru en"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres memory"`
	DSN             string        `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"gte=1"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
}

type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Concurrency int    `mapstructure:"concurrency" validate:"gte=1"`
	Queue       string `mapstructure:"queue" validate:"required"`
	SweepSpec   string `mapstructure:"sweep_spec"`
}

type AdminConfig struct {
	Password      string        `mapstructure:"password"`
	PasswordHash  string        `mapstructure:"password_hash"`
	SessionSecret string        `mapstructure:"session_secret" validate:"required,min=16"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	ActorID       int64         `mapstructure:"actor_id"`
}

type PurchasesConfig struct {
	Mode         string  `mapstructure:"mode" validate:"oneof=simulated disabled"`
	BundlePolicy string  `mapstructure:"bundle_policy" validate:"oneof=idempotent append reject"`
	Discount     float64 `mapstructure:"discount" validate:"gt=0,lte=1"`
}

type BroadcastConfig struct {
	RatePerSecond      float64       `mapstructure:"rate_per_second" validate:"gt=0"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	IncludeUnreachable bool          `mapstructure:"include_unreachable"`
	MediaDir           string        `mapstructure:"media_dir" validate:"required"`
	MediaTTL           time.Duration `mapstructure:"media_ttl"`
	Timeout            time.Duration `mapstructure:"timeout"`
	LocalWorkers       int           `mapstructure:"local_workers" validate:"gte=1"`
	StatusTTL          time.Duration `mapstructure:"status_ttl"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url" validate:"required_if=Enabled true"`
	Exchange string `mapstructure:"exchange"`
}

type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	APIRequests   int           `mapstructure:"api_requests" validate:"gte=0"`
	APIWindow     time.Duration `mapstructure:"api_window"`
	LoginAttempts int           `mapstructure:"login_attempts" validate:"gte=0"`
	LoginWindow   time.Duration `mapstructure:"login_window"`
	BotMessages   int           `mapstructure:"bot_messages" validate:"gte=0"`
	BotWindow     time.Duration `mapstructure:"bot_window"`
}

// IsAdmin reports whether telegramID is listed as a bot administrator.
func (c BotConfig) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}

	return false
}
