package catalog

import (
	"context"
	"fmt"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
)

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
	topBlocksLimit    = 5
)

// LogView records that the Mini App showed a question to a user.
func (s *Service) LogView(ctx context.Context, telegramID, questionID int64) error {
	user, err := s.store.Users().FindByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}

	return s.store.Views().Append(ctx, user.ID, questionID)
}

func (s *Service) PurgeViews(ctx context.Context, actorID int64) (int64, error) {
	var removed int64
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		n, err := tx.Views().Purge(ctx)
		if err != nil {
			return err
		}
		removed = n
		return audit(ctx, tx, actorID, ActionPurgeViews, fmt.Sprintf("removed=%d", n))
	})

	return removed, err
}

// RecentAudit returns the newest entries first. limit is clamped to [1, MaxAuditLimit].
func (s *Service) RecentAudit(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}

	return s.store.Audit().Recent(ctx, limit)
}

// ClearAudit empties the audit log and then records who did it.
func (s *Service) ClearAudit(ctx context.Context, actorID int64) (int64, error) {
	var removed int64
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		n, err := tx.Audit().Clear(ctx)
		if err != nil {
			return err
		}
		removed = n
		return audit(ctx, tx, actorID, ActionClearAudit, fmt.Sprintf("removed=%d", n))
	})

	return removed, err
}

func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	var (
		stats domain.Stats
		err   error
	)

	if stats.Users, err = s.store.Users().Count(ctx); err != nil {
		return stats, err
	}
	if stats.Purchases, err = s.store.Purchases().Count(ctx); err != nil {
		return stats, err
	}
	if stats.Views, err = s.store.Views().Count(ctx); err != nil {
		return stats, err
	}
	if stats.TopBlocks, err = s.store.Views().TopBlocks(ctx, topBlocksLimit); err != nil {
		return stats, err
	}

	return stats, nil
}
