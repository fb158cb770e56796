// Package access decides whether an end user may open a content block.
package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
)

// Resolver is read-only. Every error path answers false.
type Resolver struct {
	store repository.Store
	log   *slog.Logger
}

func NewResolver(store repository.Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}

	return &Resolver{store: store, log: log.With(slog.String("component", "access"))}
}

// HasAccess reports whether the user identified by telegramID may open blockID.
// Free blocks are open to everyone, including users never seen before.
// An unknown user has no purchases and therefore no access to paid blocks.
// An unknown block is an errors.ErrNotFound.
func (r *Resolver) HasAccess(ctx context.Context, telegramID, blockID int64) (bool, error) {
	block, err := r.store.Blocks().Get(ctx, blockID)
	if err != nil {
		return false, err
	}

	if !block.IsPaid {
		return true, nil
	}

	user, err := r.store.Users().FindByTelegramID(ctx, telegramID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err := r.store.Purchases().Covers(ctx, user.ID, blockID)
	if err != nil {
		r.log.Warn("purchase lookup failed", slog.Int64("telegram_id", telegramID), slog.Int64("block_id", blockID), slog.Any("error", err))
		return false, err
	}

	return ok, nil
}

// ListBlocks returns every block in display order flagged with the user's access.
func (r *Resolver) ListBlocks(ctx context.Context, telegramID int64) ([]domain.BlockAccess, error) {
	blocks, err := r.store.Blocks().List(ctx)
	if err != nil {
		return nil, err
	}

	owned := make(map[int64]bool)
	var bundle bool

	user, err := r.store.Users().FindByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		ids, hasBundle, err := r.store.Purchases().Owned(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			owned[id] = true
		}
		bundle = hasBundle
	}

	out := make([]domain.BlockAccess, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, domain.BlockAccess{
			Block:      b,
			Accessible: !b.IsPaid || bundle || owned[b.ID],
		})
	}

	return out, nil
}
