package usercache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
)

func TestCacheRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewCache(client, time.Minute)

	got, err := c.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, &domain.User{ID: 1, TelegramID: 5, Username: "kate"}))

	got, err = c.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "kate", got.Username)

	mr.FastForward(2 * time.Minute)
	got, err = c.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNilCacheAlwaysMisses(t *testing.T) {
	c := NewCache(nil, time.Minute)

	require.NoError(t, c.Set(context.Background(), &domain.User{TelegramID: 1}))
	got, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
