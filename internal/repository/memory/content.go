package memory

import (
	"context"
	"sort"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type blockRepo struct{ s *Store }

func (r *blockRepo) List(ctx context.Context) ([]domain.Block, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]domain.Block, 0, len(st.blocks))
	for _, b := range st.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *blockRepo) Get(ctx context.Context, id int64) (*domain.Block, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, ok := st.blocks[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("block", id)
	}

	return &b, nil
}

func (r *blockRepo) Create(ctx context.Context, b *domain.Block) error {
	if b.Price < 0 {
		return apperrors.NewValidationError("price must not be negative")
	}

	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	b.ID = st.next("blocks")
	b.CreatedAt = r.s.now()
	st.blocks[b.ID] = *b

	return nil
}

func (r *blockRepo) Update(ctx context.Context, b *domain.Block) error {
	if b.Price < 0 {
		return apperrors.NewValidationError("price must not be negative")
	}

	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	existing, ok := st.blocks[b.ID]
	if !ok {
		return apperrors.NewNotFoundError("block", b.ID)
	}

	b.CreatedAt = existing.CreatedAt
	st.blocks[b.ID] = *b

	return nil
}

// Delete drops the block, its questions, their views and single-block purchases.
func (r *blockRepo) Delete(ctx context.Context, id int64) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := st.blocks[id]; !ok {
		return apperrors.NewNotFoundError("block", id)
	}

	removed := make(map[int64]bool)
	for _, qid := range st.blockQuestions[id] {
		delete(st.questions, qid)
		removed[qid] = true
	}
	delete(st.blockQuestions, id)
	delete(st.blocks, id)

	st.views = filterViews(st.views, removed)

	purchases := st.purchases[:0]
	for _, p := range st.purchases {
		if p.BlockID != nil && *p.BlockID == id {
			continue
		}
		purchases = append(purchases, p)
	}
	st.purchases = purchases

	return nil
}

func (r *blockRepo) SumPaidPrices(ctx context.Context) (float64, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var sum float64
	for _, b := range st.blocks {
		if b.IsPaid {
			sum += b.Price
		}
	}

	return sum, nil
}

func filterViews(views []domain.View, removedQuestions map[int64]bool) []domain.View {
	out := views[:0]
	for _, v := range views {
		if removedQuestions[v.QuestionID] {
			continue
		}
		out = append(out, v)
	}

	return out
}

type questionRepo struct{ s *Store }

func (r *questionRepo) ListByBlock(ctx context.Context, blockID int64) ([]domain.Question, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ids := st.blockQuestions[blockID]
	out := make([]domain.Question, 0, len(ids))
	for _, qid := range ids {
		out = append(out, st.questions[qid])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *questionRepo) Get(ctx context.Context, id int64) (*domain.Question, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	q, ok := st.questions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("question", id)
	}

	return &q, nil
}

func (r *questionRepo) Create(ctx context.Context, q *domain.Question) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := st.blocks[q.BlockID]; !ok {
		return apperrors.NewNotFoundError("block", q.BlockID)
	}

	q.ID = st.next("questions")
	q.CreatedAt = r.s.now()
	st.questions[q.ID] = *q
	st.blockQuestions[q.BlockID] = append(st.blockQuestions[q.BlockID], q.ID)

	return nil
}

func (r *questionRepo) Update(ctx context.Context, q *domain.Question) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	existing, ok := st.questions[q.ID]
	if !ok {
		return apperrors.NewNotFoundError("question", q.ID)
	}
	if _, ok := st.blocks[q.BlockID]; !ok {
		return apperrors.NewNotFoundError("block", q.BlockID)
	}

	if existing.BlockID != q.BlockID {
		st.blockQuestions[existing.BlockID] = removeID(st.blockQuestions[existing.BlockID], q.ID)
		st.blockQuestions[q.BlockID] = append(st.blockQuestions[q.BlockID], q.ID)
	}

	q.CreatedAt = existing.CreatedAt
	st.questions[q.ID] = *q

	return nil
}

func (r *questionRepo) Delete(ctx context.Context, id int64) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	q, ok := st.questions[id]
	if !ok {
		return apperrors.NewNotFoundError("question", id)
	}

	delete(st.questions, id)
	st.blockQuestions[q.BlockID] = removeID(st.blockQuestions[q.BlockID], id)
	st.views = filterViews(st.views, map[int64]bool{id: true})

	return nil
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}

	return out
}

type viewRepo struct{ s *Store }

func (r *viewRepo) Append(ctx context.Context, userID, questionID int64) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := st.users[userID]; !ok {
		return apperrors.NewNotFoundError("user", userID)
	}
	if _, ok := st.questions[questionID]; !ok {
		return apperrors.NewNotFoundError("question", questionID)
	}

	st.views = append(st.views, domain.View{
		ID:         st.next("views"),
		UserID:     userID,
		QuestionID: questionID,
		CreatedAt:  r.s.now(),
	})

	return nil
}

func (r *viewRepo) Count(ctx context.Context) (int64, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return int64(len(st.views)), nil
}

func (r *viewRepo) TopBlocks(ctx context.Context, limit int) ([]domain.BlockViews, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	counts := make(map[int64]int64)
	for _, v := range st.views {
		q, ok := st.questions[v.QuestionID]
		if !ok {
			continue
		}
		counts[q.BlockID]++
	}

	out := make([]domain.BlockViews, 0, len(counts))
	for blockID, n := range counts {
		out = append(out, domain.BlockViews{BlockID: blockID, Title: st.blocks[blockID].Title, Views: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].BlockID < out[j].BlockID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *viewRepo) Purge(ctx context.Context) (int64, error) {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := int64(len(st.views))
	st.views = nil

	return n, nil
}
