package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
)

const maxDesignValueLen = 100

// GetDesign returns stored settings laid over the defaults.
func (s *Service) GetDesign(ctx context.Context) (domain.Design, error) {
	stored, err := s.store.Design().Get(ctx)
	if err != nil {
		return nil, err
	}

	return stored.Merge(), nil
}

// UpdateDesign merges changes into the stored settings. Keys ending in _color must be hex colours.
func (s *Service) UpdateDesign(ctx context.Context, actorID int64, changes domain.Design) (domain.Design, error) {
	if len(changes) == 0 {
		return nil, apperrors.NewValidationError("no design settings given")
	}

	keys := make([]string, 0, len(changes))
	for k, v := range changes {
		if err := s.checkDesignValue(k, v); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var saved domain.Design
	err := s.store.Atomic(ctx, func(tx repository.Store) error {
		current, err := tx.Design().Get(ctx)
		if err != nil {
			return err
		}

		next := domain.Design{}
		for k, v := range current {
			next[k] = v
		}
		for k, v := range changes {
			next[k] = strings.TrimSpace(v)
		}

		if err := tx.Design().Save(ctx, next); err != nil {
			return err
		}
		saved = next

		return audit(ctx, tx, actorID, ActionUpdateDesign, strings.Join(keys, ","))
	})
	if err != nil {
		return nil, err
	}

	return saved.Merge(), nil
}

func (s *Service) checkDesignValue(key, value string) error {
	if key == "" || len(key) > 64 {
		return apperrors.NewValidationError("invalid design key")
	}

	value = strings.TrimSpace(value)
	if len(value) > maxDesignValueLen {
		return apperrors.NewValidationError(fmt.Sprintf("%s is too long", key))
	}

	if strings.HasSuffix(key, "_color") {
		if err := s.validate.Var(value, "required,hexcolor"); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("%s must be a hex colour", key))
		}
	}

	return nil
}
