package repository

import (
	"context"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
)

type viewRepository struct {
	db dbtx
}

func NewViewRepository(db dbtx) ViewRepository {
	return &viewRepository{db: db}
}

func (r *viewRepository) Append(ctx context.Context, userID, questionID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO views (user_id, question_id) VALUES ($1, $2)`, userID, questionID)

	return storageError("insert view", "question", err)
}

func (r *viewRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM views`).Scan(&n); err != nil {
		return 0, storageError("count views", "view", err)
	}

	return n, nil
}

func (r *viewRepository) TopBlocks(ctx context.Context, limit int) ([]domain.BlockViews, error) {
	const query = `
		SELECT b.id, b.title, COUNT(v.id) AS views
		FROM blocks b
		JOIN questions q ON q.block_id = b.id
		JOIN views v ON v.question_id = q.id
		GROUP BY b.id, b.title
		ORDER BY views DESC, b.id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storageError("top blocks", "block", err)
	}
	defer rows.Close()

	var out []domain.BlockViews
	for rows.Next() {
		var bv domain.BlockViews
		if err := rows.Scan(&bv.BlockID, &bv.Title, &bv.Views); err != nil {
			return nil, storageError("scan top block", "block", err)
		}
		out = append(out, bv)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("top blocks", "block", err)
	}

	return out, nil
}

func (r *viewRepository) Purge(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM views`)
	if err != nil {
		return 0, storageError("purge views", "view", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("purge views", "view", err)
	}

	return n, nil
}
