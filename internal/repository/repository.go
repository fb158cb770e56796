// Package repository defines persistence contracts and their Postgres implementation.
//
// Every method reports a missing entity as errors.ErrNotFound and a storage
// failure as errors.ErrStorageUnavailable (both from internal/errors).
package repository

import (
	"context"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
)

// Store groups the repositories and runs multi-step writes atomically.
type Store interface {
	Users() UserRepository
	Blocks() BlockRepository
	Questions() QuestionRepository
	Views() ViewRepository
	Purchases() PurchaseRepository
	Design() DesignRepository
	Audit() AuditRepository

	// Atomic runs fn against a transactional view of the store. Any error rolls back every write made through tx.
	Atomic(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

type UserRepository interface {
	FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	// Upsert creates the user or refreshes its display names. created reports a new row.
	Upsert(ctx context.Context, user *domain.User) (created bool, err error)
	// LockForUpdate serialises concurrent writers for the user until the transaction ends.
	LockForUpdate(ctx context.Context, userID int64) error
	MarkUnreachable(ctx context.Context, telegramID int64) error
	ListRecipients(ctx context.Context, includeUnreachable bool) ([]domain.User, error)
	Count(ctx context.Context) (int64, error)
	Export(ctx context.Context) ([]domain.UserExport, error)
}

type BlockRepository interface {
	List(ctx context.Context) ([]domain.Block, error)
	Get(ctx context.Context, id int64) (*domain.Block, error)
	Create(ctx context.Context, block *domain.Block) error
	Update(ctx context.Context, block *domain.Block) error
	// Delete removes the block together with its questions.
	Delete(ctx context.Context, id int64) error
	SumPaidPrices(ctx context.Context) (float64, error)
}

type QuestionRepository interface {
	ListByBlock(ctx context.Context, blockID int64) ([]domain.Question, error)
	Get(ctx context.Context, id int64) (*domain.Question, error)
	// Create fails with ErrNotFound when the parent block does not exist.
	Create(ctx context.Context, question *domain.Question) error
	Update(ctx context.Context, question *domain.Question) error
	Delete(ctx context.Context, id int64) error
}

type ViewRepository interface {
	Append(ctx context.Context, userID, questionID int64) error
	Count(ctx context.Context) (int64, error)
	TopBlocks(ctx context.Context, limit int) ([]domain.BlockViews, error)
	Purge(ctx context.Context) (int64, error)
}

type PurchaseRepository interface {
	// Covers reports whether a purchase for blockID or a bundle exists for the user.
	Covers(ctx context.Context, userID, blockID int64) (bool, error)
	HasBundle(ctx context.Context, userID int64) (bool, error)
	// Owned returns the ids of individually purchased blocks and whether a bundle exists.
	Owned(ctx context.Context, userID int64) (blockIDs []int64, bundle bool, err error)
	// InsertBlock records a single-block purchase. It returns false without writing when one already exists.
	InsertBlock(ctx context.Context, userID, blockID int64) (bool, error)
	InsertBundle(ctx context.Context, userID int64) error
	Count(ctx context.Context) (int64, error)
}

type DesignRepository interface {
	// Get returns the stored settings, or an empty Design when none are stored.
	Get(ctx context.Context) (domain.Design, error)
	Save(ctx context.Context, design domain.Design) error
}

type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditLog) error
	Recent(ctx context.Context, limit int) ([]domain.AuditLog, error)
	Clear(ctx context.Context) (int64, error)
}
