package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendRedis  = "redis"
	backendMemory = "memory"
)

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Rate limit decisions by backend and result.",
	}, []string{"backend", "result"})

	primaryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_primary_failures_total",
		Help: "Checks the shared limiter could not answer and the memory limiter decided instead.",
	})
)

// AdaptiveLimiter asks the shared Redis limiter first. When Redis cannot answer, the
// in-process limiter decides with half the limit, since each replica then counts alone.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log.With(slog.String("component", "ratelimit")),
	}
}

func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	result, err := a.primary.Check(ctx, key, limit, window)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		record(backendRedis, err)
		return result, err
	}

	primaryFailuresTotal.Inc()
	a.log.Warn("shared limiter unavailable, deciding in memory", slog.String("key", key), slog.Any("error", err))

	result, err = a.fallback.Check(ctx, key, max(limit/2, 1), window)
	record(backendMemory, err)

	return result, err
}

func record(backend string, err error) {
	switch {
	case err == nil:
		checksTotal.WithLabelValues(backend, "allowed").Inc()
	case errors.Is(err, ErrLimitExceeded):
		checksTotal.WithLabelValues(backend, "rejected").Inc()
	default:
		checksTotal.WithLabelValues(backend, "error").Inc()
	}
}
