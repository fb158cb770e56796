// Package catalog manages the quiz content: blocks, questions, Mini App design,
// view statistics and the audit trail.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
)

const (
	ActionAddBlock       = "add_block"
	ActionEditBlock      = "edit_block"
	ActionDeleteBlock    = "delete_block"
	ActionAddQuestion    = "add_question"
	ActionEditQuestion   = "edit_question"
	ActionDeleteQuestion = "delete_question"
	ActionUpdateDesign   = "update_design"
	ActionPurgeViews     = "purge_views"
	ActionClearAudit     = "clear_audit"
)

const auditPreviewRunes = 50

type BlockInput struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=4000"`
	IsPaid      bool    `json:"is_paid"`
	Price       float64 `json:"price" validate:"gte=0"`
	SortOrder   int     `json:"sort_order"`
}

type QuestionInput struct {
	Text      string `json:"text" validate:"required,max=4000"`
	SortOrder int    `json:"sort_order"`
}

// Service is the admin-facing content API. Every mutation is recorded in the audit log
// in the same transaction as the change.
type Service struct {
	store    repository.Store
	validate *validator.Validate
	log      *slog.Logger
}

func NewService(store repository.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With(slog.String("component", "catalog")),
	}
}

func (s *Service) ListBlocks(ctx context.Context) ([]domain.Block, error) {
	return s.store.Blocks().List(ctx)
}

func (s *Service) GetBlock(ctx context.Context, id int64) (*domain.Block, error) {
	return s.store.Blocks().Get(ctx, id)
}

func (s *Service) CreateBlock(ctx context.Context, actorID int64, in BlockInput) (*domain.Block, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.check(in); err != nil {
		return nil, err
	}

	block := in.block()
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		if err := tx.Blocks().Create(ctx, block); err != nil {
			return err
		}
		return audit(ctx, tx, actorID, ActionAddBlock, fmt.Sprintf("%d:%s", block.ID, block.Title))
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "block created", slog.Int64("block_id", block.ID), slog.Int64("actor_id", actorID))

	return block, nil
}

func (s *Service) UpdateBlock(ctx context.Context, actorID, id int64, in BlockInput) (*domain.Block, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.check(in); err != nil {
		return nil, err
	}

	block := in.block()
	block.ID = id
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		if err := tx.Blocks().Update(ctx, block); err != nil {
			return err
		}
		return audit(ctx, tx, actorID, ActionEditBlock, fmt.Sprintf("%d:%s", block.ID, block.Title))
	})
	if err != nil {
		return nil, err
	}

	return s.store.Blocks().Get(ctx, id)
}

// DeleteBlock removes the block, its questions and their views.
func (s *Service) DeleteBlock(ctx context.Context, actorID, id int64) error {
	return s.store.Atomic(ctx, func(tx repository.Store) error {
		block, err := tx.Blocks().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Blocks().Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, actorID, ActionDeleteBlock, fmt.Sprintf("%d:%s", id, block.Title))
	})
}

// ListQuestions returns the questions of an existing block ordered by sort order.
func (s *Service) ListQuestions(ctx context.Context, blockID int64) ([]domain.Question, error) {
	if _, err := s.store.Blocks().Get(ctx, blockID); err != nil {
		return nil, err
	}

	return s.store.Questions().ListByBlock(ctx, blockID)
}

func (s *Service) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	return s.store.Questions().Get(ctx, id)
}

func (s *Service) CreateQuestion(ctx context.Context, actorID, blockID int64, in QuestionInput) (*domain.Question, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := s.check(in); err != nil {
		return nil, err
	}

	q := &domain.Question{BlockID: blockID, Text: in.Text, SortOrder: in.SortOrder}
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		if err := tx.Questions().Create(ctx, q); err != nil {
			return err
		}
		return audit(ctx, tx, actorID, ActionAddQuestion, questionDetails(q))
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, actorID, id int64, in QuestionInput) (*domain.Question, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := s.check(in); err != nil {
		return nil, err
	}

	var q *domain.Question
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		current, err := tx.Questions().Get(ctx, id)
		if err != nil {
			return err
		}
		current.Text = in.Text
		current.SortOrder = in.SortOrder
		if err := tx.Questions().Update(ctx, current); err != nil {
			return err
		}
		q = current
		return audit(ctx, tx, actorID, ActionEditQuestion, questionDetails(q))
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, actorID, id int64) error {
	return s.store.Atomic(ctx, func(tx repository.Store) error {
		q, err := tx.Questions().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Questions().Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, actorID, ActionDeleteQuestion, questionDetails(q))
	})
}

func (s *Service) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewValidationError(fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return apperrors.NewValidationError(err.Error())
	}

	return nil
}

func (in BlockInput) block() *domain.Block {
	return &domain.Block{
		Title:       in.Title,
		Description: in.Description,
		IsPaid:      in.IsPaid,
		Price:       in.Price,
		SortOrder:   in.SortOrder,
	}
}

func questionDetails(q *domain.Question) string {
	return fmt.Sprintf("%d:block=%d:%s", q.ID, q.BlockID, truncate(q.Text, auditPreviewRunes))
}

func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func audit(ctx context.Context, tx repository.Store, actorID int64, action, details string) error {
	return tx.Audit().Append(ctx, domain.AuditLog{ActorID: actorID, Action: action, Details: details})
}
