package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCheckerReport(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.AddCheck("redis", NewRedisChecker(client))
	c.AddCheck("database", CheckFunc(func(context.Context) error { return nil }))

	report := c.Check(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, map[string]string{"redis": "OK", "database": "OK"}, report.Components)

	c.AddCheck("telegram", NewTelegramChecker(nil))
	c.AddCheck("database", CheckFunc(func(context.Context) error { return errors.New("connection refused") }))

	report = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["database"])
	assert.NotEqual(t, "OK", report.Components["telegram"])
	assert.Equal(t, "OK", report.Components["redis"])
}
