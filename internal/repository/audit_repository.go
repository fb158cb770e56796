package repository

import (
	"context"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
)

type auditRepository struct {
	db dbtx
}

func NewAuditRepository(db dbtx) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (actor_id, action, details) VALUES ($1, $2, $3)`,
		entry.ActorID, entry.Action, entry.Details)

	return storageError("insert audit log", "audit log", err)
}

func (r *auditRepository) Recent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, actor_id, action, details, created_at FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, storageError("list audit logs", "audit log", err)
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, storageError("scan audit log", "audit log", err)
		}
		out = append(out, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("list audit logs", "audit log", err)
	}

	return out, nil
}

func (r *auditRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs`)
	if err != nil {
		return 0, storageError("clear audit logs", "audit log", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("clear audit logs", "audit log", err)
	}

	return n, nil
}
