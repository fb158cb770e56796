package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
)

const secret = "0123456789abcdef0123"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoginAndVerify(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	a, err := NewPasswordAuthenticator(Config{Password: "s3cret", SessionSecret: secret, ActorID: 7}, store.Audit(), testLogger())
	require.NoError(t, err)

	_, err = a.Login(ctx, "wrong")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	session, err := a.Login(ctx, "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)

	claims, err := a.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)

	logs, err := store.Audit().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionLogin, logs[0].Action)
}

func TestPreHashedPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	a, err := NewPasswordAuthenticator(Config{PasswordHash: string(hash), SessionSecret: secret}, nil, testLogger())
	require.NoError(t, err)

	_, err = a.Login(context.Background(), "pw")
	assert.NoError(t, err)

	_, err = NewPasswordAuthenticator(Config{PasswordHash: "not-a-hash", SessionSecret: secret}, nil, testLogger())
	assert.Error(t, err)
}

func TestVerifyRejects(t *testing.T) {
	a, err := NewPasswordAuthenticator(Config{Password: "pw", SessionSecret: secret, SessionTTL: time.Minute}, nil, testLogger())
	require.NoError(t, err)

	session, err := a.Login(context.Background(), "pw")
	require.NoError(t, err)

	other, err := NewPasswordAuthenticator(Config{Password: "pw", SessionSecret: "another-secret-value"}, nil, testLogger())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		auth  *PasswordAuthenticator
		token string
	}{
		{name: "garbage", auth: a, token: "abc"},
		{name: "foreign secret", auth: other, token: session.Token},
		{name: "alg none", auth: a, token: unsigned},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.auth.Verify(context.Background(), tc.token)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		})
	}

	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = a.Verify(context.Background(), session.Token)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogoutRevokesSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	testCases := []struct {
		name    string
		revoked Revocations
	}{
		{name: "memory", revoked: NewMemoryRevocations()},
		{name: "redis", revoked: NewRedisRevocations(client)},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			a, err := NewPasswordAuthenticator(Config{Password: "pw", SessionSecret: secret, Revoked: tc.revoked}, nil, testLogger())
			require.NoError(t, err)

			first, err := a.Login(ctx, "pw")
			require.NoError(t, err)
			second, err := a.Login(ctx, "pw")
			require.NoError(t, err)

			require.NoError(t, a.Logout(ctx, first.Token))

			_, err = a.Verify(ctx, first.Token)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

			_, err = a.Verify(ctx, second.Token)
			assert.NoError(t, err, "other sessions stay valid")

			assert.NoError(t, a.Logout(ctx, "garbage"))
		})
	}
}

func TestRedisRevocationExpiresWithToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	revoked := NewRedisRevocations(client)

	require.NoError(t, revoked.Revoke(ctx, "sid", time.Now().Add(time.Minute)))
	ok, err := revoked.Revoked(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = revoked.Revoked(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyFailsClosedWhenRevocationsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	a, err := NewPasswordAuthenticator(Config{Password: "pw", SessionSecret: secret, Revoked: NewRedisRevocations(client)}, nil, testLogger())
	require.NoError(t, err)

	session, err := a.Login(ctx, "pw")
	require.NoError(t, err)

	mr.Close()

	_, err = a.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}
