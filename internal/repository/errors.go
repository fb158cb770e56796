package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// storageError translates a driver error into the application taxonomy.
// missing describes the entity reported when a foreign key does not resolve.
func storageError(op, missing string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return apperrors.NewNotFoundError(missing, pqErr.Constraint)
		case pqUniqueViolation:
			return apperrors.NewConflictError(fmt.Sprintf("%s: duplicate %s", op, pqErr.Constraint))
		case pqCheckViolation:
			return apperrors.NewValidationError(fmt.Sprintf("%s: %s", op, pqErr.Constraint))
		}
	}

	return apperrors.NewDatabaseError(fmt.Errorf("%s: %w", op, err))
}

func expectAffected(res sql.Result, op, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageError(op, entity, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(entity, id)
	}

	return nil
}
