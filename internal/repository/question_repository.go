package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type questionRepository struct {
	db  dbtx
	log *slog.Logger
}

func NewQuestionRepository(db dbtx, log *slog.Logger) QuestionRepository {
	if log == nil {
		log = slog.Default()
	}

	return &questionRepository{db: db, log: log}
}

const questionColumns = `id, block_id, text, sort_order, created_at`

func scanQuestion(row rowScanner, q *domain.Question) error {
	return row.Scan(&q.ID, &q.BlockID, &q.Text, &q.SortOrder, &q.CreatedAt)
}

func (r *questionRepository) ListByBlock(ctx context.Context, blockID int64) ([]domain.Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE block_id = $1 ORDER BY sort_order, id`, blockID)
	if err != nil {
		return nil, storageError("list questions", "question", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, storageError("scan question", "question", err)
		}
		questions = append(questions, q)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list questions", "question", err)
	}

	return questions, nil
}

func (r *questionRepository) Get(ctx context.Context, id int64) (*domain.Question, error) {
	var q domain.Question
	err := scanQuestion(r.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id), &q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("question", id)
	}
	if err != nil {
		return nil, storageError("select question", "question", err)
	}

	return &q, nil
}

func (r *questionRepository) Create(ctx context.Context, q *domain.Question) error {
	const query = `
		INSERT INTO questions (block_id, text, sort_order)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowContext(ctx, query, q.BlockID, q.Text, q.SortOrder).Scan(&q.ID, &q.CreatedAt); err != nil {
		return storageError("insert question", "block", err)
	}

	return nil
}

func (r *questionRepository) Update(ctx context.Context, q *domain.Question) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE questions SET block_id = $2, text = $3, sort_order = $4 WHERE id = $1`,
		q.ID, q.BlockID, q.Text, q.SortOrder)
	if err != nil {
		return storageError("update question", "block", err)
	}

	return expectAffected(res, "update question", "question", q.ID)
}

func (r *questionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return storageError("delete question", "question", err)
	}

	return expectAffected(res, "delete question", "question", id)
}
