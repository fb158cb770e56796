// Package memory is an in-process implementation of repository.Store.
//
// Questions are indexed by block id so deleting a block cascades explicitly,
// the same way the Postgres schema does with ON DELETE CASCADE.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
)

type state struct {
	seq            map[string]int64
	users          map[int64]domain.User
	byTelegram     map[int64]int64
	blocks         map[int64]domain.Block
	questions      map[int64]domain.Question
	blockQuestions map[int64][]int64
	views          []domain.View
	purchases      []domain.Purchase
	design         domain.Design
	audit          []domain.AuditLog
}

func newState() *state {
	return &state{
		seq:            make(map[string]int64),
		users:          make(map[int64]domain.User),
		byTelegram:     make(map[int64]int64),
		blocks:         make(map[int64]domain.Block),
		questions:      make(map[int64]domain.Question),
		blockQuestions: make(map[int64][]int64),
	}
}

func (st *state) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.seq {
		out.seq[k] = v
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.byTelegram {
		out.byTelegram[k] = v
	}
	for k, v := range st.blocks {
		out.blocks[k] = v
	}
	for k, v := range st.questions {
		out.questions[k] = v
	}
	for k, v := range st.blockQuestions {
		out.blockQuestions[k] = append([]int64(nil), v...)
	}
	out.views = append([]domain.View(nil), st.views...)
	out.purchases = append([]domain.Purchase(nil), st.purchases...)
	out.audit = append([]domain.AuditLog(nil), st.audit...)
	if st.design != nil {
		out.design = domain.Design{}
		for k, v := range st.design {
			out.design[k] = v
		}
	}

	return out
}

// Store keeps every table in maps guarded by one mutex.
//
// Writers serialise on txMu. A transaction holds txMu for its whole run and works on a
// private copy of the tables that replaces the committed copy only when fn succeeds, so
// readers never observe uncommitted rows.
type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	st   *state
	inTx bool
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		st:   newState(),
		now:  time.Now,
	}
}

func (s *Store) Users() repository.UserRepository         { return &userRepo{s: s} }
func (s *Store) Blocks() repository.BlockRepository       { return &blockRepo{s: s} }
func (s *Store) Questions() repository.QuestionRepository { return &questionRepo{s: s} }
func (s *Store) Views() repository.ViewRepository         { return &viewRepo{s: s} }
func (s *Store) Purchases() repository.PurchaseRepository { return &purchaseRepo{s: s} }
func (s *Store) Design() repository.DesignRepository      { return &designRepo{s: s} }
func (s *Store) Audit() repository.AuditRepository        { return &auditRepo{s: s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Atomic runs fn against a copy of the tables and commits the copy when fn returns nil.
func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	if err := ctx.Err(); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	working := s.st.clone()
	s.mu.Unlock()

	tx := &Store{mu: &sync.Mutex{}, txMu: s.txMu, st: working, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = working
	s.mu.Unlock()

	return nil
}

func (s *Store) lock(ctx context.Context) (*state, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.NewDatabaseError(err)
	}

	s.mu.Lock()

	return s.st, s.mu.Unlock, nil
}

// write is lock for mutations. Outside a transaction it waits for any running one to finish.
func (s *Store) write(ctx context.Context) (*state, func(), error) {
	if s.inTx {
		return s.lock(ctx)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.NewDatabaseError(err)
	}

	s.txMu.Lock()
	s.mu.Lock()

	return s.st, func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, ok := st.byTelegram[telegramID]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", telegramID)
	}

	u := st.users[id]

	return &u, nil
}

func (r *userRepo) Upsert(ctx context.Context, user *domain.User) (bool, error) {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if id, ok := st.byTelegram[user.TelegramID]; ok {
		existing := st.users[id]
		existing.Username = user.Username
		existing.FirstName = user.FirstName
		existing.LastName = user.LastName
		st.users[id] = existing
		*user = existing
		return false, nil
	}

	user.ID = st.next("users")
	user.Blocked = false
	user.CreatedAt = r.s.now()
	st.users[user.ID] = *user
	st.byTelegram[user.TelegramID] = user.ID

	return true, nil
}

func (r *userRepo) LockForUpdate(ctx context.Context, userID int64) error {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := st.users[userID]; !ok {
		return apperrors.NewNotFoundError("user", userID)
	}

	return nil
}

func (r *userRepo) MarkUnreachable(ctx context.Context, telegramID int64) error {
	st, unlock, err := r.s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	id, ok := st.byTelegram[telegramID]
	if !ok {
		return apperrors.NewNotFoundError("user", telegramID)
	}

	u := st.users[id]
	u.Blocked = true
	st.users[id] = u

	return nil
}

func (r *userRepo) ListRecipients(ctx context.Context, includeUnreachable bool) ([]domain.User, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []domain.User
	for _, u := range st.users {
		if u.Blocked && !includeUnreachable {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return int64(len(st.users)), nil
}

func (r *userRepo) Export(ctx context.Context) ([]domain.UserExport, error) {
	st, unlock, err := r.s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]domain.UserExport, 0, len(st.users))
	for _, u := range st.users {
		row := domain.UserExport{User: u}
		for _, p := range st.purchases {
			if p.UserID != u.ID {
				continue
			}
			if p.IsBundle() {
				row.HasBundle = true
				continue
			}
			row.PurchasedBlocks = append(row.PurchasedBlocks, *p.BlockID)
		}
		sort.Slice(row.PurchasedBlocks, func(i, j int) bool { return row.PurchasedBlocks[i] < row.PurchasedBlocks[j] })
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}
