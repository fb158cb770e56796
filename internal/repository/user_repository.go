package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/lib/pq"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type userRepository struct {
	db  dbtx
	log *slog.Logger
}

// NewUserRepository creates a SQL-backed user repository.
func NewUserRepository(db dbtx, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}

	return &userRepository{db: db, log: log}
}

const userColumns = `id, telegram_id, username, first_name, last_name, blocked, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, user *domain.User) error {
	return row.Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Blocked,
		&user.CreatedAt,
	)
}

func (r *userRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)

	var user domain.User
	if err := scanUser(row, &user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("user", telegramID)
		}

		r.log.Error("failed to fetch user by telegram id", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
		return nil, storageError("select user", "user", err)
	}

	return &user, nil
}

// Upsert relies on xmax = 0 to tell a fresh insert from a conflict update.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) (bool, error) {
	const query = `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name
		RETURNING id, blocked, created_at, (xmax = 0) AS created
	`

	var created bool
	err := r.db.QueryRowContext(ctx, query, user.TelegramID, user.Username, user.FirstName, user.LastName).
		Scan(&user.ID, &user.Blocked, &user.CreatedAt, &created)
	if err != nil {
		r.log.Error("failed to upsert user", slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
		return false, storageError("upsert user", "user", err)
	}

	return created, nil
}

func (r *userRepository) LockForUpdate(ctx context.Context, userID int64) error {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError("user", userID)
	}

	return storageError("lock user", "user", err)
}

func (r *userRepository) MarkUnreachable(ctx context.Context, telegramID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET blocked = TRUE WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return storageError("mark user unreachable", "user", err)
	}

	return expectAffected(res, "mark user unreachable", "user", telegramID)
}

func (r *userRepository) ListRecipients(ctx context.Context, includeUnreachable bool) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE $1 OR NOT blocked ORDER BY id`, includeUnreachable)
	if err != nil {
		return nil, storageError("list recipients", "user", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var user domain.User
		if err := scanUser(rows, &user); err != nil {
			return nil, storageError("scan recipient", "user", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list recipients", "user", err)
	}

	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, storageError("count users", "user", err)
	}

	return n, nil
}

func (r *userRepository) Export(ctx context.Context) ([]domain.UserExport, error) {
	const query = `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.blocked, u.created_at,
		       COALESCE(array_agg(p.block_id ORDER BY p.block_id) FILTER (WHERE p.block_id IS NOT NULL), '{}'),
		       COALESCE(bool_or(p.id IS NOT NULL AND p.block_id IS NULL), FALSE)
		FROM users u
		LEFT JOIN purchases p ON p.user_id = u.id
		GROUP BY u.id
		ORDER BY u.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("export users", "user", err)
	}
	defer rows.Close()

	var out []domain.UserExport
	for rows.Next() {
		var (
			row    domain.UserExport
			blocks pq.Int64Array
		)
		if err := rows.Scan(
			&row.ID,
			&row.TelegramID,
			&row.Username,
			&row.FirstName,
			&row.LastName,
			&row.Blocked,
			&row.CreatedAt,
			&blocks,
			&row.HasBundle,
		); err != nil {
			return nil, storageError("scan export row", "user", err)
		}
		row.PurchasedBlocks = []int64(blocks)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("export users", "user", err)
	}

	return out, nil
}
