// Package ledger records access grants and prices the all-blocks bundle.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/events"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
	"github.com/zanti495-bot/web-bot-outloud/pkg/metrics"
)

// DefaultDiscount is the bundle price multiplier.
const DefaultDiscount = 0.8

// Audit actions written by the ledger.
const (
	ActionAddPurchase = "add_purchase"
	ActionBuyAll      = "buy_all"
	ActionBuyAllAgain = "buy_all_repeat"
)

type Config struct {
	Mode     Mode
	Policy   BundlePolicy
	Discount float64
}

// Grant describes the outcome of a grant call. Granted is false for a no-op.
type Grant struct {
	TelegramID int64
	BlockID    *int64
	Bundle     bool
	Granted    bool
}

type Ledger struct {
	store     repository.Store
	publisher events.Publisher
	cfg       Config
	log       *slog.Logger
}

func New(store repository.Store, publisher events.Publisher, cfg Config, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyIdempotent
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSimulated
	}
	if cfg.Discount <= 0 {
		cfg.Discount = DefaultDiscount
	}

	return &Ledger{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With(slog.String("component", "ledger")),
	}
}

// Simulated reports whether grants are issued without payment verification.
func (l *Ledger) Simulated() bool {
	return l.cfg.Mode == ModeSimulated
}

func (l *Ledger) checkEnabled() error {
	if l.cfg.Mode != ModeSimulated {
		return apperrors.NewForbiddenError("purchases are disabled")
	}
	return nil
}

// GrantBlock gives the user access to one block. A second call for the same pair
// writes nothing and returns Granted=false. The unique index on (user, block)
// keeps concurrent calls from producing duplicates.
func (l *Ledger) GrantBlock(ctx context.Context, telegramID, blockID int64) (Grant, error) {
	grant := Grant{TelegramID: telegramID, BlockID: &blockID}

	if err := l.checkEnabled(); err != nil {
		return grant, err
	}
	if telegramID <= 0 || blockID <= 0 {
		return grant, apperrors.NewValidationError("user_id and block_id must be positive")
	}

	err := l.store.Atomic(ctx, func(tx repository.Store) error {
		user, err := tx.Users().FindByTelegramID(ctx, telegramID)
		if err != nil {
			return err
		}

		block, err := tx.Blocks().Get(ctx, blockID)
		if err != nil {
			return err
		}

		inserted, err := tx.Purchases().InsertBlock(ctx, user.ID, block.ID)
		if err != nil || !inserted {
			return err
		}
		grant.Granted = true

		return tx.Audit().Append(ctx, domain.AuditLog{
			ActorID: telegramID,
			Action:  ActionAddPurchase,
			Details: fmt.Sprintf("user %d purchased block %d %q", telegramID, block.ID, block.Title),
		})
	})
	if err != nil {
		grant.Granted = false
		metrics.RecordPurchase("block", "error")
		return grant, err
	}

	if !grant.Granted {
		metrics.RecordPurchase("block", "noop")
		return grant, nil
	}

	metrics.RecordPurchase("block", "granted")
	l.log.Info("block granted", slog.Int64("telegram_id", telegramID), slog.Int64("block_id", blockID))
	l.publish(ctx, grant)

	return grant, nil
}

// GrantAllBlocks records a bundle purchase covering every paid block, present and future.
// Repeated calls follow the configured BundlePolicy.
func (l *Ledger) GrantAllBlocks(ctx context.Context, telegramID int64) (Grant, error) {
	grant := Grant{TelegramID: telegramID, Bundle: true}

	if err := l.checkEnabled(); err != nil {
		return grant, err
	}
	if telegramID <= 0 {
		return grant, apperrors.NewValidationError("user_id must be positive")
	}

	err := l.store.Atomic(ctx, func(tx repository.Store) error {
		user, err := tx.Users().FindByTelegramID(ctx, telegramID)
		if err != nil {
			return err
		}

		if err := tx.Users().LockForUpdate(ctx, user.ID); err != nil {
			return err
		}

		owned, err := tx.Purchases().HasBundle(ctx, user.ID)
		if err != nil {
			return err
		}

		action := ActionBuyAll
		switch {
		case !owned:
			grant.Granted = true
		case l.cfg.Policy == PolicyAppend:
			grant.Granted = true
			action = ActionBuyAllAgain
		case l.cfg.Policy == PolicyReject:
			return apperrors.NewConflictError(fmt.Sprintf("user %d already owns the bundle", telegramID))
		default:
			action = ActionBuyAllAgain
		}

		if grant.Granted {
			if err := tx.Purchases().InsertBundle(ctx, user.ID); err != nil {
				return err
			}
		}

		return tx.Audit().Append(ctx, domain.AuditLog{
			ActorID: telegramID,
			Action:  action,
			Details: fmt.Sprintf("user %d bundle purchase (policy %s, granted %t)", telegramID, l.cfg.Policy, grant.Granted),
		})
	})
	if err != nil {
		grant.Granted = false
		metrics.RecordPurchase("bundle", "error")
		return grant, err
	}

	if !grant.Granted {
		metrics.RecordPurchase("bundle", "noop")
		return grant, nil
	}

	metrics.RecordPurchase("bundle", "granted")
	l.log.Info("bundle granted", slog.Int64("telegram_id", telegramID), slog.String("policy", string(l.cfg.Policy)))
	l.publish(ctx, grant)

	return grant, nil
}

// BundlePrice is the discounted sum of all paid block prices, read fresh on every call.
func (l *Ledger) BundlePrice(ctx context.Context) (float64, error) {
	sum, err := l.store.Blocks().SumPaidPrices(ctx)
	if err != nil {
		return 0, err
	}

	return roundCents(sum * l.cfg.Discount), nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func (l *Ledger) publish(ctx context.Context, grant Grant) {
	event := events.New(events.TypePurchaseGranted, events.PurchaseGranted{
		TelegramID: grant.TelegramID,
		BlockID:    grant.BlockID,
		Bundle:     grant.Bundle,
	})

	if err := l.publisher.Publish(ctx, event); err != nil {
		l.log.Warn("purchase event not published", slog.Int64("telegram_id", grant.TelegramID), slog.Any("error", err))
	}
}
