package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/zanti495-bot/web-bot-outloud/internal/database"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type postgresStore struct {
	db   *sql.DB
	conn dbtx
	log  *slog.Logger
}

// NewPostgresStore builds a Store over db.
func NewPostgresStore(db *sql.DB, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	return &postgresStore{db: db, conn: db, log: log.With(slog.String("component", "store"))}
}

func (s *postgresStore) Users() UserRepository         { return NewUserRepository(s.conn, s.log) }
func (s *postgresStore) Blocks() BlockRepository       { return NewBlockRepository(s.conn, s.log) }
func (s *postgresStore) Questions() QuestionRepository { return NewQuestionRepository(s.conn, s.log) }
func (s *postgresStore) Views() ViewRepository         { return NewViewRepository(s.conn) }
func (s *postgresStore) Purchases() PurchaseRepository { return NewPurchaseRepository(s.conn) }
func (s *postgresStore) Design() DesignRepository      { return NewDesignRepository(s.conn) }
func (s *postgresStore) Audit() AuditRepository        { return NewAuditRepository(s.conn) }

// Atomic nests by reusing the open transaction.
func (s *postgresStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if _, inTx := s.conn.(*sql.Tx); inTx {
		return fn(s)
	}

	var fnErr error
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		fnErr = fn(&postgresStore{db: s.db, conn: tx, log: s.log})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return apperrors.NewDatabaseError(err)
	}

	return err
}

func (s *postgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	return nil
}
