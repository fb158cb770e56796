package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quiz:ratelimit:"

// RedisLimiter keeps the sliding window in a sorted set per key, so every replica of the
// HTTP API and the bot shares one count. Scores are hit times in milliseconds.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		now:    time.Now,
		log:    log,
	}
}

// Check adds a hit and counts the window in one transaction. A hit over the limit is
// removed again so that rejected requests do not extend the client's wait.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("rate limiter: redis client is not configured")
	}

	now := l.now()
	redisKey := redisKeyPrefix + key
	member := uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limiter transaction failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	hits := int(count.Val())
	result := &Result{
		Allowed:   hits <= limit,
		Remaining: max(limit-hits, 0),
		ResetAt:   now.Add(window),
	}
	if first := oldest.Val(); len(first) > 0 {
		result.ResetAt = time.UnixMilli(int64(first[0].Score)).Add(window)
	}

	if result.Allowed {
		return result, nil
	}

	if err := l.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		l.log.Warn("rejected hit not removed", slog.String("key", key), slog.Any("error", err))
	}

	return result, ErrLimitExceeded
}
