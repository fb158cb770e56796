package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type blockRepository struct {
	db  dbtx
	log *slog.Logger
}

func NewBlockRepository(db dbtx, log *slog.Logger) BlockRepository {
	if log == nil {
		log = slog.Default()
	}

	return &blockRepository{db: db, log: log}
}

const blockColumns = `id, title, description, is_paid, price, sort_order, created_at`

func scanBlock(row rowScanner, b *domain.Block) error {
	return row.Scan(&b.ID, &b.Title, &b.Description, &b.IsPaid, &b.Price, &b.SortOrder, &b.CreatedAt)
}

func (r *blockRepository) List(ctx context.Context) ([]domain.Block, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks ORDER BY sort_order, id`)
	if err != nil {
		return nil, storageError("list blocks", "block", err)
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		var b domain.Block
		if err := scanBlock(rows, &b); err != nil {
			return nil, storageError("scan block", "block", err)
		}
		blocks = append(blocks, b)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list blocks", "block", err)
	}

	return blocks, nil
}

func (r *blockRepository) Get(ctx context.Context, id int64) (*domain.Block, error) {
	var b domain.Block
	err := scanBlock(r.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = $1`, id), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("block", id)
	}
	if err != nil {
		return nil, storageError("select block", "block", err)
	}

	return &b, nil
}

func (r *blockRepository) Create(ctx context.Context, b *domain.Block) error {
	const query = `
		INSERT INTO blocks (title, description, is_paid, price, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, b.Title, b.Description, b.IsPaid, b.Price, b.SortOrder).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		r.log.Error("failed to create block", slog.String("title", b.Title), slog.Any("error", err))
		return storageError("insert block", "block", err)
	}

	return nil
}

func (r *blockRepository) Update(ctx context.Context, b *domain.Block) error {
	const query = `
		UPDATE blocks
		SET title = $2, description = $3, is_paid = $4, price = $5, sort_order = $6
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, b.ID, b.Title, b.Description, b.IsPaid, b.Price, b.SortOrder)
	if err != nil {
		return storageError("update block", "block", err)
	}

	return expectAffected(res, "update block", "block", b.ID)
}

// Delete relies on ON DELETE CASCADE for questions, views and single-block purchases.
func (r *blockRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = $1`, id)
	if err != nil {
		return storageError("delete block", "block", err)
	}

	return expectAffected(res, "delete block", "block", id)
}

func (r *blockRepository) SumPaidPrices(ctx context.Context) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(price), 0) FROM blocks WHERE is_paid`).Scan(&sum)
	if err != nil {
		return 0, storageError("sum paid prices", "block", err)
	}

	return sum, nil
}
