package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/i18n"
	"github.com/zanti495-bot/web-bot-outloud/internal/ratelimit"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
	"github.com/zanti495-bot/web-bot-outloud/internal/state"
	"github.com/zanti495-bot/web-bot-outloud/internal/user"
	"github.com/zanti495-bot/web-bot-outloud/pkg/config"
)

const adminID = 1000

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeContext records what handlers send. Methods it does not override panic through the nil embedded Context.
type fakeContext struct {
	telebot.Context

	sender   *telebot.User
	message  *telebot.Message
	callback *telebot.Callback

	mu        sync.Mutex
	sent      []string
	responded bool
	store     map[string]any
}

func newTextContext(userID int64, text string) *fakeContext {
	sender := &telebot.User{ID: userID, FirstName: "Test", LanguageCode: "en"}
	return &fakeContext{
		sender:  sender,
		message: &telebot.Message{Sender: sender, Text: text},
		store:   make(map[string]any),
	}
}

func newCallbackContext(userID int64, data string) *fakeContext {
	c := newTextContext(userID, "")
	c.callback = &telebot.Callback{Sender: c.sender, Data: data, Message: c.message}
	return c
}

func (c *fakeContext) Sender() *telebot.User       { return c.sender }
func (c *fakeContext) Message() *telebot.Message   { return c.message }
func (c *fakeContext) Callback() *telebot.Callback { return c.callback }

func (c *fakeContext) Text() string {
	if c.message == nil {
		return ""
	}
	if c.message.Caption != "" {
		return c.message.Caption
	}
	return c.message.Text
}

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, _ := what.(string)
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeContext) Respond(_ ...*telebot.CallbackResponse) error {
	c.responded = true
	return nil
}

func (c *fakeContext) Get(key string) interface{} {
	return c.store[key]
}

func (c *fakeContext) Set(key string, value interface{}) {
	c.store[key] = value
}

func (c *fakeContext) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{
		Users:     3,
		Purchases: 2,
		Views:     9,
		TopBlocks: []domain.BlockViews{{BlockID: 1, Title: "Intro", Views: 7}},
	}, nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, actorID int64, text string, _ *broadcast.Upload) (broadcast.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return broadcast.Status{}, f.err
	}
	f.texts = append(f.texts, text)
	return broadcast.Status{ID: "b-1", ActorID: actorID, State: broadcast.StateQueued}, nil
}

type testBot struct {
	router    *Router
	fsm       state.StateMachine
	store     *memory.Store
	submitter *fakeSubmitter
}

func newTestBot(t *testing.T, cfg config.BotConfig, mutate func(*Deps)) *testBot {
	t.Helper()

	loc, err := i18n.Load("en")
	require.NoError(t, err)

	store := memory.NewStore()
	fsm := state.NewStateMachine(state.NewMemoryStorage(time.Hour), testLogger(), nil)
	submitter := &fakeSubmitter{}

	cfg.AdminIDs = append(cfg.AdminIDs, adminID)
	deps := Deps{
		Users:      user.NewService(store.Users(), nil, testLogger()),
		Stats:      fakeStats{},
		Broadcasts: submitter,
		FSM:        fsm,
		Localizer:  loc,
		Errors:     apperrors.NewHandler(testLogger(), false),
	}
	if mutate != nil {
		mutate(&deps)
	}

	return &testBot{
		router:    newRouter(cfg, deps, nil, testLogger()),
		fsm:       fsm,
		store:     store,
		submitter: submitter,
	}
}

func TestStartCommand(t *testing.T) {
	tests := []struct {
		name    string
		miniApp string
		text    string
		want    string
	}{
		{name: "mini app configured", miniApp: "https://app.example", text: "/start", want: "Welcome! Tap the button below to open the Mini App."},
		{name: "bot name suffix", miniApp: "https://app.example", text: "/start@quiz_bot", want: "Welcome! Tap the button below to open the Mini App."},
		{name: "mini app missing", text: "/start", want: "The Mini App is not configured yet."},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBot(t, config.BotConfig{MiniAppURL: tc.miniApp}, nil)
			c := newTextContext(42, tc.text)

			require.NoError(t, tb.router.Route(c))
			assert.Equal(t, tc.want, c.last())
		})
	}
}

func TestRouteRegistersSender(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, tb.router.Route(newTextContext(42, "hello")))
	require.NoError(t, tb.router.Route(newTextContext(42, "/help")))

	count, err := tb.store.Users().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUnknownTextGetsHint(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	c := newTextContext(42, "what is this")

	require.NoError(t, tb.router.Route(c))
	assert.Equal(t, "Hi! This is a broadcast bot. Use /start.", c.last())
}

func TestAdminCommandsRejectOthers(t *testing.T) {
	for _, cmd := range []string{CommandStats, CommandBroadcast} {
		cmd := cmd
		t.Run(cmd, func(t *testing.T) {
			tb := newTestBot(t, config.BotConfig{}, nil)
			c := newTextContext(42, cmd)

			require.NoError(t, tb.router.Route(c))
			assert.Equal(t, "This command is for administrators only.", c.last())
		})
	}
}

func TestStatsCommand(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	c := newTextContext(adminID, CommandStats)

	require.NoError(t, tb.router.Route(c))
	assert.Equal(t, "Users: 3\nPurchases: 2\nViews: 9\n1. Intro: 7", c.last())
}

func TestBroadcastDialog(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	ctx := context.Background()

	prompt := newTextContext(adminID, CommandBroadcast)
	require.NoError(t, tb.router.Route(prompt))
	assert.Equal(t, "Send the broadcast text. /cancel to abort.", prompt.last())

	current, err := tb.fsm.GetState(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, state.StateAwaitingBroadcast, current.CurrentState)

	message := newTextContext(adminID, "Big news")
	require.NoError(t, tb.router.Route(message))
	assert.Equal(t, "Broadcast b-1 queued.", message.last())
	assert.Equal(t, []string{"Big news"}, tb.submitter.texts)

	_, err = tb.fsm.GetState(ctx, adminID)
	assert.ErrorIs(t, err, state.ErrStateNotFound)

	after := newTextContext(adminID, "just chatting")
	require.NoError(t, tb.router.Route(after))
	assert.Equal(t, "Hi! This is a broadcast bot. Use /start.", after.last())
	assert.Len(t, tb.submitter.texts, 1)
}

func TestBroadcastValidationFailureIsReported(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	tb.submitter.err = apperrors.NewValidationError("message is empty")

	require.NoError(t, tb.router.Route(newTextContext(adminID, CommandBroadcast)))

	c := newTextContext(adminID, "  ")
	require.NoError(t, tb.router.Route(c))
	assert.True(t, strings.HasPrefix(c.last(), "Could not start the broadcast:"))

	_, err := tb.fsm.GetState(context.Background(), adminID)
	assert.ErrorIs(t, err, state.ErrStateNotFound)
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name     string
		prepare  bool
		callback bool
		want     string
	}{
		{name: "command with pending dialog", prepare: true, want: "Cancelled."},
		{name: "button with pending dialog", prepare: true, callback: true, want: "Cancelled."},
		{name: "nothing pending", want: "Nothing to cancel."},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBot(t, config.BotConfig{}, nil)
			if tc.prepare {
				require.NoError(t, tb.router.Route(newTextContext(adminID, CommandBroadcast)))
			}

			c := newTextContext(adminID, CommandCancel)
			if tc.callback {
				c = newCallbackContext(adminID, "cancel")
			}

			require.NoError(t, tb.router.Route(c))
			assert.Equal(t, tc.want, c.last())
			assert.Equal(t, tc.callback, c.responded)

			_, err := tb.fsm.GetState(context.Background(), adminID)
			assert.ErrorIs(t, err, state.ErrStateNotFound)
		})
	}
}

func TestUnknownCallbackIsAnswered(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	c := newCallbackContext(42, "stale:1")

	require.NoError(t, tb.router.Route(c))
	assert.True(t, c.responded)
	assert.Empty(t, c.sent)
}

func TestRateLimitSkipsAdmins(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(testLogger())
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:     true,
		BotMessages: 1,
		BotWindow:   time.Minute,
	}, []int64{adminID})

	tb := newTestBot(t, config.BotConfig{}, func(d *Deps) {
		d.Limiter = limiter
		d.Rules = rules
	})

	first := newTextContext(42, "/help")
	require.NoError(t, tb.router.Route(first))
	assert.Equal(t, "Use /start to open the questions.", first.last())

	second := newTextContext(42, "/help")
	require.NoError(t, tb.router.Route(second))
	assert.Equal(t, "Too many messages. Please slow down.", second.last())

	for i := 0; i < 3; i++ {
		c := newTextContext(adminID, "/help")
		require.NoError(t, tb.router.Route(c))
		assert.Equal(t, "Use /start to open the questions.", c.last())
	}
}

func TestHandlerErrorsAreAnswered(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "plain error", err: errors.New("boom"), want: "Something went wrong. Please try again later."},
		{name: "app error with user message", err: &apperrors.AppError{Kind: apperrors.KindConflict, Message: "dup", UserMessage: "Already done"}, want: "Already done"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBot(t, config.BotConfig{}, nil)
			tb.router.RegisterCommand("/fail", func(telebot.Context) error { return tc.err })

			c := newTextContext(42, "/fail")
			require.NoError(t, tb.router.Route(c))
			assert.Equal(t, tc.want, c.last())
		})
	}
}

func TestPanicIsRecovered(t *testing.T) {
	tb := newTestBot(t, config.BotConfig{}, nil)
	tb.router.RegisterCommand("/panic", func(telebot.Context) error { panic("kaboom") })

	c := newTextContext(42, "/panic")
	require.NoError(t, tb.router.Route(c))
	assert.Equal(t, "Something went wrong. Please try again later.", c.last())
}

func TestNewOffline(t *testing.T) {
	loc, err := i18n.Load("en")
	require.NoError(t, err)

	deps := Deps{
		FSM:       state.NewStateMachine(state.NewMemoryStorage(time.Hour), testLogger(), nil),
		Localizer: loc,
	}

	pollingClient, err := NewClient(config.BotConfig{Offline: true, Mode: ModePolling, PollTimeout: time.Second}, testLogger())
	require.NoError(t, err)

	polling, err := New(pollingClient, config.BotConfig{Offline: true}, deps, testLogger())
	require.NoError(t, err)
	assert.Nil(t, polling.Webhook())
	assert.Same(t, pollingClient, polling.Telebot())

	polling.Start()
	polling.Stop()

	webhookClient, err := NewClient(config.BotConfig{Offline: true, Mode: ModeWebhook, WebhookURL: "https://bot.example/webhook"}, testLogger())
	require.NoError(t, err)

	webhook, err := New(webhookClient, config.BotConfig{Offline: true}, deps, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, webhook.Webhook())

	_, err = New(pollingClient, config.BotConfig{Offline: true}, Deps{Localizer: loc}, testLogger())
	assert.Error(t, err)

	_, err = New(nil, config.BotConfig{Offline: true}, deps, testLogger())
	assert.Error(t, err)
}
