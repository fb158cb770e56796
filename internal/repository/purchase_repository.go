package repository

import (
	"context"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
)

type purchaseRepository struct {
	db dbtx
}

func NewPurchaseRepository(db dbtx) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Covers(ctx context.Context, userID, blockID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM purchases
			WHERE user_id = $1 AND (block_id = $2 OR block_id IS NULL)
		)
	`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, userID, blockID).Scan(&ok); err != nil {
		return false, storageError("check purchase", "purchase", err)
	}

	return ok, nil
}

func (r *purchaseRepository) HasBundle(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE user_id = $1 AND block_id IS NULL)`, userID).Scan(&ok)
	if err != nil {
		return false, storageError("check bundle", "purchase", err)
	}

	return ok, nil
}

func (r *purchaseRepository) Owned(ctx context.Context, userID int64) ([]int64, bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT block_id FROM purchases WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, false, storageError("list purchases", "purchase", err)
	}
	defer rows.Close()

	var (
		ids    []int64
		bundle bool
	)
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.BlockID); err != nil {
			return nil, false, storageError("scan purchase", "purchase", err)
		}
		if p.IsBundle() {
			bundle = true
			continue
		}
		ids = append(ids, *p.BlockID)
	}

	if err := rows.Err(); err != nil {
		return nil, false, storageError("list purchases", "purchase", err)
	}

	return ids, bundle, nil
}

// InsertBlock depends on the partial unique index over (user_id, block_id).
func (r *purchaseRepository) InsertBlock(ctx context.Context, userID, blockID int64) (bool, error) {
	const query = `
		INSERT INTO purchases (user_id, block_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, block_id) WHERE block_id IS NOT NULL DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query, userID, blockID)
	if err != nil {
		return false, storageError("insert purchase", "block", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storageError("insert purchase", "block", err)
	}

	return n == 1, nil
}

func (r *purchaseRepository) InsertBundle(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO purchases (user_id, block_id) VALUES ($1, NULL)`, userID)

	return storageError("insert bundle purchase", "user", err)
}

func (r *purchaseRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases`).Scan(&n); err != nil {
		return 0, storageError("count purchases", "purchase", err)
	}

	return n, nil
}
