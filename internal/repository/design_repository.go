package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
)

type designRepository struct {
	db dbtx
}

func NewDesignRepository(db dbtx) DesignRepository {
	return &designRepository{db: db}
}

func (r *designRepository) Get(ctx context.Context) (domain.Design, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT settings FROM design WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Design{}, nil
	}
	if err != nil {
		return nil, storageError("select design", "design", err)
	}

	design := domain.Design{}
	if err := json.Unmarshal(raw, &design); err != nil {
		return nil, storageError("decode design", "design", fmt.Errorf("settings: %w", err))
	}

	return design, nil
}

func (r *designRepository) Save(ctx context.Context, design domain.Design) error {
	raw, err := json.Marshal(design)
	if err != nil {
		return fmt.Errorf("encode design: %w", err)
	}

	const query = `
		INSERT INTO design (id, settings, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query, raw)

	return storageError("save design", "design", err)
}
