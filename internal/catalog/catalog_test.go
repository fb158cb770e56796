package catalog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
)

const admin = int64(1)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	return NewService(store, testLogger()), store
}

func actions(t *testing.T, s *Service) []string {
	t.Helper()

	logs, err := s.RecentAudit(context.Background(), 0)
	require.NoError(t, err)

	out := make([]string, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i].Action)
	}
	return out
}

func TestBlockLifecycleIsAudited(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	block, err := s.CreateBlock(ctx, admin, BlockInput{Title: "  Basics ", IsPaid: true, Price: 50})
	require.NoError(t, err)
	assert.Equal(t, "Basics", block.Title)

	updated, err := s.UpdateBlock(ctx, admin, block.ID, BlockInput{Title: "Basics 2", Price: 0})
	require.NoError(t, err)
	assert.Equal(t, "Basics 2", updated.Title)
	assert.False(t, updated.IsPaid)

	q, err := s.CreateQuestion(ctx, admin, block.ID, QuestionInput{Text: strings.Repeat("вопрос ", 20)})
	require.NoError(t, err)

	_, err = s.UpdateQuestion(ctx, admin, q.ID, QuestionInput{Text: "short", SortOrder: 3})
	require.NoError(t, err)

	require.NoError(t, s.DeleteQuestion(ctx, admin, q.ID))
	require.NoError(t, s.DeleteBlock(ctx, admin, block.ID))

	assert.Equal(t, []string{
		ActionAddBlock, ActionEditBlock, ActionAddQuestion, ActionEditQuestion, ActionDeleteQuestion, ActionDeleteBlock,
	}, actions(t, s))

	logs, err := s.RecentAudit(ctx, 10)
	require.NoError(t, err)
	for _, l := range logs {
		if l.Action == ActionAddQuestion {
			assert.LessOrEqual(t, len([]rune(l.Details)), 50+len("1:block=1:"))
		}
	}
}

func TestInvalidInputWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	block, err := s.CreateBlock(ctx, admin, BlockInput{Title: "ok"})
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "blank title", run: func() error {
			_, err := s.CreateBlock(ctx, admin, BlockInput{Title: "   "})
			return err
		}},
		{name: "negative price", run: func() error {
			_, err := s.CreateBlock(ctx, admin, BlockInput{Title: "x", Price: -1})
			return err
		}},
		{name: "update negative price", run: func() error {
			_, err := s.UpdateBlock(ctx, admin, block.ID, BlockInput{Title: "x", Price: -0.01})
			return err
		}},
		{name: "blank question", run: func() error {
			_, err := s.CreateQuestion(ctx, admin, block.ID, QuestionInput{Text: ""})
			return err
		}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), apperrors.ErrValidation)
		})
	}

	blocks, err := store.Blocks().List(ctx)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
	assert.Equal(t, []string{ActionAddBlock}, actions(t, s))
}

func TestMissingParentsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.CreateQuestion(ctx, admin, 99, QuestionInput{Text: "orphan"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.ListQuestions(ctx, 99)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.UpdateBlock(ctx, admin, 99, BlockInput{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, s.DeleteBlock(ctx, admin, 99), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteQuestion(ctx, admin, 99), apperrors.ErrNotFound)

	assert.Empty(t, actions(t, s))
}

func TestDesign(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	design, err := s.GetDesign(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDesign(), design)

	design, err = s.UpdateDesign(ctx, admin, domain.Design{"background_color": "#112233"})
	require.NoError(t, err)
	assert.Equal(t, "#112233", design["background_color"])
	assert.Equal(t, "#000000", design["text_color"])
	assert.Equal(t, "Arial", design["font_family"])

	_, err = s.UpdateDesign(ctx, admin, domain.Design{"text_color": "red"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = s.UpdateDesign(ctx, admin, domain.Design{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	design, err = s.GetDesign(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#112233", design["background_color"])
	assert.Equal(t, "#000000", design["text_color"])

	assert.Equal(t, []string{ActionUpdateDesign}, actions(t, s))
}

func TestViewsAndStats(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	a, err := s.CreateBlock(ctx, admin, BlockInput{Title: "A"})
	require.NoError(t, err)
	b, err := s.CreateBlock(ctx, admin, BlockInput{Title: "B"})
	require.NoError(t, err)
	qa, err := s.CreateQuestion(ctx, admin, a.ID, QuestionInput{Text: "qa"})
	require.NoError(t, err)
	qb, err := s.CreateQuestion(ctx, admin, b.ID, QuestionInput{Text: "qb"})
	require.NoError(t, err)

	_, err = store.Users().Upsert(ctx, &domain.User{TelegramID: 10})
	require.NoError(t, err)

	require.NoError(t, s.LogView(ctx, 10, qb.ID))
	require.NoError(t, s.LogView(ctx, 10, qb.ID))
	require.NoError(t, s.LogView(ctx, 10, qa.ID))

	assert.ErrorIs(t, s.LogView(ctx, 11, qa.ID), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.LogView(ctx, 10, 999), apperrors.ErrNotFound)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Users)
	assert.EqualValues(t, 3, stats.Views)
	assert.Zero(t, stats.Purchases)
	require.Len(t, stats.TopBlocks, 2)
	assert.Equal(t, "B", stats.TopBlocks[0].Title)
	assert.EqualValues(t, 2, stats.TopBlocks[0].Views)

	removed, err := s.PurgeViews(ctx, admin)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Views)
	assert.Empty(t, stats.TopBlocks)
}

func TestAuditLimitsAndClear(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	for i := 0; i < MaxAuditLimit+10; i++ {
		require.NoError(t, store.Audit().Append(ctx, domain.AuditLog{ActorID: admin, Action: "x"}))
	}

	logs, err := s.RecentAudit(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, logs, DefaultAuditLimit)

	logs, err = s.RecentAudit(ctx, 10_000)
	require.NoError(t, err)
	assert.Len(t, logs, MaxAuditLimit)

	removed, err := s.ClearAudit(ctx, admin)
	require.NoError(t, err)
	assert.EqualValues(t, MaxAuditLimit+10, removed)

	assert.Equal(t, []string{ActionClearAudit}, actions(t, s))
}
