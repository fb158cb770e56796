package memory

import (
	"context"
	"sort"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type purchaseRepo struct{ s *Store }

func (r *purchaseRepo) Covers(ctx context.Context, userID, blockID int64) (bool, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, p := range st.purchases {
		if p.UserID != userID {
			continue
		}
		if p.IsBundle() || *p.BlockID == blockID {
			return true, nil
		}
	}

	return false, nil
}

func (r *purchaseRepo) HasBundle(ctx context.Context, userID int64) (bool, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, p := range st.purchases {
		if p.UserID == userID && p.IsBundle() {
			return true, nil
		}
	}

	return false, nil
}

func (r *purchaseRepo) Owned(ctx context.Context, userID int64) ([]int64, bool, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	var (
		ids    []int64
		bundle bool
	)
	for _, p := range st.purchases {
		if p.UserID != userID {
			continue
		}
		if p.IsBundle() {
			bundle = true
			continue
		}
		ids = append(ids, *p.BlockID)
	}

	return ids, bundle, nil
}

func (r *purchaseRepo) InsertBlock(ctx context.Context, userID, blockID int64) (bool, error) {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, ok := st.users[userID]; !ok {
		return false, apperrors.NewNotFoundError("user", userID)
	}
	if _, ok := st.blocks[blockID]; !ok {
		return false, apperrors.NewNotFoundError("block", blockID)
	}

	for _, p := range st.purchases {
		if p.UserID == userID && p.BlockID != nil && *p.BlockID == blockID {
			return false, nil
		}
	}

	id := blockID
	st.purchases = append(st.purchases, domain.Purchase{
		ID:        st.next("purchases"),
		UserID:    userID,
		BlockID:   &id,
		CreatedAt: r.s.now(),
	})

	return true, nil
}

func (r *purchaseRepo) InsertBundle(ctx context.Context, userID int64) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := st.users[userID]; !ok {
		return apperrors.NewNotFoundError("user", userID)
	}

	st.purchases = append(st.purchases, domain.Purchase{
		ID:        st.next("purchases"),
		UserID:    userID,
		CreatedAt: r.s.now(),
	})

	return nil
}

func (r *purchaseRepo) Count(ctx context.Context) (int64, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return int64(len(st.purchases)), nil
}

type designRepo struct{ s *Store }

func (r *designRepo) Get(ctx context.Context) (domain.Design, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := domain.Design{}
	for k, v := range st.design {
		out[k] = v
	}

	return out, nil
}

func (r *designRepo) Save(ctx context.Context, design domain.Design) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	st.design = domain.Design{}
	for k, v := range design {
		st.design[k] = v
	}

	return nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Append(ctx context.Context, entry domain.AuditLog) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	entry.ID = st.next("audit_logs")
	entry.CreatedAt = r.s.now()
	st.audit = append(st.audit, entry)

	return nil
}

func (r *auditRepo) Recent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := append([]domain.AuditLog(nil), st.audit...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *auditRepo) Clear(ctx context.Context) (int64, error) {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := int64(len(st.audit))
	st.audit = nil

	return n, nil
}
