// Package user registers Telegram users and exports the roster.
package user

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
	"github.com/zanti495-bot/web-bot-outloud/internal/usercache"
)

var exportHeader = []string{"user_id", "username", "first_name", "last_name", "blocked", "purchased_blocks", "created_at"}

// Service provides business operations over users.
type Service struct {
	repo  repository.UserRepository
	cache *usercache.Cache
	log   *slog.Logger
}

// NewService constructs a new Service instance. cache may be nil.
func NewService(repo repository.UserRepository, cache *usercache.Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{repo: repo, cache: cache, log: log}
}

// EnsureUser returns the stored user for a Telegram account, creating it on first contact
// and refreshing the display names when they change.
func (s *Service) EnsureUser(ctx context.Context, telegramUser *telebot.User) (*domain.User, error) {
	if telegramUser == nil {
		return nil, errors.New("telegram user is nil")
	}

	if cached, err := s.cache.Get(ctx, telegramUser.ID); err != nil {
		s.log.Warn("user cache unavailable", slog.Any("error", err))
	} else if cached != nil && sameNames(cached, telegramUser) {
		return cached, nil
	}

	user := &domain.User{
		TelegramID: telegramUser.ID,
		Username:   telegramUser.Username,
		FirstName:  telegramUser.FirstName,
		LastName:   telegramUser.LastName,
	}

	created, err := s.repo.Upsert(ctx, user)
	if err != nil {
		s.logError("ensure_user", telegramUser.ID, err)
		return nil, err
	}

	if created {
		s.log.Info("user registered", slog.Int64("telegram_id", user.TelegramID))
	}

	if err := s.cache.Set(ctx, user); err != nil {
		s.log.Warn("user cache not updated", slog.Any("error", err))
	}

	return user, nil
}

// ExportCSV writes the full roster with purchased block ids joined by ';'.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.repo.Export(ctx)
	if err != nil {
		s.logError("export", 0, err)
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	for _, row := range rows {
		purchased := make([]string, 0, len(row.PurchasedBlocks)+1)
		if row.HasBundle {
			purchased = append(purchased, "all")
		}
		for _, id := range row.PurchasedBlocks {
			purchased = append(purchased, strconv.FormatInt(id, 10))
		}

		record := []string{
			strconv.FormatInt(row.TelegramID, 10),
			row.Username,
			row.FirstName,
			row.LastName,
			strconv.FormatBool(row.Blocked),
			strings.Join(purchased, ";"),
			row.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

func sameNames(u *domain.User, t *telebot.User) bool {
	return u.Username == t.Username && u.FirstName == t.FirstName && u.LastName == t.LastName
}

func (s *Service) logError(operation string, telegramID int64, err error) {
	if err == nil {
		return
	}

	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("telegram_id", telegramID),
		slog.Any("error", err),
	)
}
