package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/zanti495-bot/web-bot-outloud/internal/access"
	"github.com/zanti495-bot/web-bot-outloud/internal/admin"
	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/catalog"
	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/ledger"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
	"github.com/zanti495-bot/web-bot-outloud/internal/user"
)

const (
	adminPassword = "correct horse"
	adminActor    = int64(42)
	customerID    = int64(100)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBroadcaster struct {
	submitted []string
	media     []string
}

func (f *fakeBroadcaster) Submit(_ context.Context, actorID int64, text string, upload *broadcast.Upload) (broadcast.Status, error) {
	if strings.TrimSpace(text) == "" && upload == nil {
		return broadcast.Status{}, apperrors.NewValidationError("broadcast text is empty")
	}
	f.submitted = append(f.submitted, text)
	if upload != nil {
		body, _ := io.ReadAll(upload.Reader)
		f.media = append(f.media, upload.Name+":"+string(body))
	}
	return broadcast.Status{ID: "b-1", State: broadcast.StateQueued, ActorID: actorID, Preview: text}, nil
}

func (f *fakeBroadcaster) Status(_ context.Context, id string) (broadcast.Status, error) {
	if id != "b-1" {
		return broadcast.Status{}, apperrors.NewNotFoundError("broadcast", id)
	}
	return broadcast.Status{ID: id, State: broadcast.StateFinished}, nil
}

type testEnv struct {
	e          *echo.Echo
	store      *memory.Store
	broadcasts *fakeBroadcaster
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	log := testLogger()
	store := memory.NewStore()

	auth, err := admin.NewPasswordAuthenticator(admin.Config{
		Password:      adminPassword,
		SessionSecret: "0123456789abcdef0123",
		SessionTTL:    time.Hour,
		ActorID:       adminActor,
	}, store.Audit(), log)
	require.NoError(t, err)

	broadcasts := &fakeBroadcaster{}
	deps := Deps{
		Catalog:        catalog.NewService(store, log),
		Access:         access.NewResolver(store, log),
		Ledger:         ledger.New(store, nil, ledger.Config{Mode: ledger.ModeSimulated, Policy: ledger.PolicyIdempotent}, log),
		Users:          user.NewService(store.Users(), nil, log),
		Auth:           auth,
		Broadcasts:     broadcasts,
		Errors:         apperrors.NewHandler(log, false),
		MaxUploadBytes: 1 << 20,
	}
	if mutate != nil {
		mutate(&deps)
	}

	return &testEnv{e: New(deps, log), store: store, broadcasts: broadcasts}
}

func (env *testEnv) do(t *testing.T, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// login returns a header carrying the session as a Bearer token.
func (env *testEnv) login(t *testing.T) http.Header {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/admin/login", loginRequest{Password: adminPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session admin.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	return http.Header{echo.HeaderAuthorization: []string{"Bearer " + session.Token}}
}

func (env *testEnv) seedUser(t *testing.T, telegramID int64) {
	t.Helper()

	_, err := env.store.Users().Upsert(context.Background(), &domain.User{TelegramID: telegramID, FirstName: "Ann"})
	require.NoError(t, err)
}

func (env *testEnv) seedBlock(t *testing.T, title string, paid bool, price float64, questions ...string) int64 {
	t.Helper()

	ctx := context.Background()
	block := &domain.Block{Title: title, IsPaid: paid, Price: price}
	require.NoError(t, env.store.Blocks().Create(ctx, block))
	for _, text := range questions {
		require.NoError(t, env.store.Questions().Create(ctx, &domain.Question{BlockID: block.ID, Text: text}))
	}
	return block.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func limitedDeps(limiter ratelimit.Limiter, rules *ratelimit.Rules) func(*Deps) {
	return func(d *Deps) {
		d.Limiter = limiter
		d.Rules = rules
	}
}
