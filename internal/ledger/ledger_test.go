package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanti495-bot/web-bot-outloud/internal/access"
	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/events"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *memory.Store
	ledger   *Ledger
	resolver *access.Resolver
	events   *events.Recorder
	blocks   map[string]*domain.Block
}

func newFixture(t *testing.T, policy BundlePolicy) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewStore()
	rec := &events.Recorder{}

	f := &fixture{
		store:    store,
		ledger:   New(store, rec, Config{Mode: ModeSimulated, Policy: policy}, testLogger()),
		resolver: access.NewResolver(store, testLogger()),
		events:   rec,
		blocks:   map[string]*domain.Block{},
	}

	for _, b := range []*domain.Block{
		{Title: "A", IsPaid: true, Price: 100},
		{Title: "B", IsPaid: true, Price: 50},
		{Title: "C", IsPaid: false},
	} {
		require.NoError(t, store.Blocks().Create(ctx, b))
		f.blocks[b.Title] = b
	}

	_, err := store.Users().Upsert(ctx, &domain.User{TelegramID: 1001, Username: "u"})
	require.NoError(t, err)

	return f
}

func (f *fixture) purchases(t *testing.T) int64 {
	t.Helper()

	n, err := f.store.Purchases().Count(context.Background())
	require.NoError(t, err)

	return n
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()

	entries, err := f.store.Audit().Recent(context.Background(), 100)
	require.NoError(t, err)

	actions := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		actions = append(actions, entries[i].Action)
	}

	return actions
}

func TestBundleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyIdempotent)

	price, err := f.ledger.BundlePrice(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 120.0, price, 1e-9)

	ok, err := f.resolver.HasAccess(ctx, 1001, f.blocks["A"].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.resolver.HasAccess(ctx, 1001, f.blocks["C"].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	grant, err := f.ledger.GrantAllBlocks(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, grant.Granted)

	for _, title := range []string{"A", "B"} {
		ok, err := f.resolver.HasAccess(ctx, 1001, f.blocks[title].ID)
		require.NoError(t, err)
		assert.True(t, ok, title)
	}

	require.Len(t, f.events.Events(), 1)
	assert.Equal(t, events.TypePurchaseGranted, f.events.Events()[0].Type)
}

func TestGrantBlockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyIdempotent)
	blockID := f.blocks["A"].ID

	first, err := f.ledger.GrantBlock(ctx, 1001, blockID)
	require.NoError(t, err)
	assert.True(t, first.Granted)

	second, err := f.ledger.GrantBlock(ctx, 1001, blockID)
	require.NoError(t, err)
	assert.False(t, second.Granted)

	assert.EqualValues(t, 1, f.purchases(t))
	assert.Equal(t, []string{ActionAddPurchase}, f.auditActions(t))

	ok, err := f.resolver.HasAccess(ctx, 1001, blockID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.resolver.HasAccess(ctx, 1001, f.blocks["B"].ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantBlockConcurrentCallsProduceOneRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyIdempotent)
	blockID := f.blocks["B"].ID

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := f.ledger.GrantBlock(ctx, 1001, blockID)
			if err == nil && g.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.EqualValues(t, 1, f.purchases(t))
}

func TestGrantErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyIdempotent)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "unknown user",
			call: func() error { _, err := f.ledger.GrantBlock(ctx, 9999, f.blocks["A"].ID); return err },
			want: apperrors.ErrNotFound,
		},
		{
			name: "unknown block",
			call: func() error { _, err := f.ledger.GrantBlock(ctx, 1001, 777); return err },
			want: apperrors.ErrNotFound,
		},
		{
			name: "bundle for unknown user",
			call: func() error { _, err := f.ledger.GrantAllBlocks(ctx, 9999); return err },
			want: apperrors.ErrNotFound,
		},
		{
			name: "non-positive id",
			call: func() error { _, err := f.ledger.GrantBlock(ctx, 0, 1); return err },
			want: apperrors.ErrValidation,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), tc.want)
		})
	}

	assert.Zero(t, f.purchases(t))
	assert.Empty(t, f.auditActions(t))
}

func TestBundlePolicies(t *testing.T) {
	tests := []struct {
		name          string
		policy        BundlePolicy
		wantErr       error
		wantPurchases int64
		wantActions   []string
	}{
		{
			name:          "idempotent audits the repeat",
			policy:        PolicyIdempotent,
			wantPurchases: 1,
			wantActions:   []string{ActionBuyAll, ActionBuyAllAgain},
		},
		{
			name:          "append records a second bundle",
			policy:        PolicyAppend,
			wantPurchases: 2,
			wantActions:   []string{ActionBuyAll, ActionBuyAllAgain},
		},
		{
			name:          "reject refuses the repeat",
			policy:        PolicyReject,
			wantErr:       apperrors.ErrConflict,
			wantPurchases: 1,
			wantActions:   []string{ActionBuyAll},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tc.policy)

			_, err := f.ledger.GrantAllBlocks(ctx, 1001)
			require.NoError(t, err)

			_, err = f.ledger.GrantAllBlocks(ctx, 1001)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tc.wantPurchases, f.purchases(t))
			assert.Equal(t, tc.wantActions, f.auditActions(t))
		})
	}
}

func TestBundlePriceTracksChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyIdempotent)

	b := f.blocks["B"]
	b.IsPaid = false
	require.NoError(t, f.store.Blocks().Update(ctx, b))

	price, err := f.ledger.BundlePrice(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, price, 1e-9)

	c := f.blocks["C"]
	c.IsPaid = true
	c.Price = 10.55
	require.NoError(t, f.store.Blocks().Update(ctx, c))

	price, err = f.ledger.BundlePrice(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 88.44, price, 1e-9)
}

func TestBundlePriceWithoutPaidBlocks(t *testing.T) {
	l := New(memory.NewStore(), nil, Config{}, testLogger())

	price, err := l.BundlePrice(context.Background())
	require.NoError(t, err)
	assert.Zero(t, price)
}

func TestDisabledModeRefusesGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyIdempotent)
	l := New(f.store, nil, Config{Mode: ModeDisabled}, testLogger())

	_, err := l.GrantAllBlocks(ctx, 1001)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.False(t, l.Simulated())
}

func TestParseBundlePolicy(t *testing.T) {
	p, err := ParseBundlePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyIdempotent, p)

	_, err = ParseBundlePolicy("twice")
	assert.Error(t, err)
}
