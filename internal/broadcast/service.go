package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

const (
	maxTextRunes    = 4096
	maxCaptionRunes = 1024
)

var (
	errNoHandler = errors.New("broadcast runner has no handler")
	errDropped   = errors.New("broadcast dropped before it started")
)

// Upload is an attachment received from the admin before it is staged.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Service accepts broadcast requests, hands them to a Runner and tracks their status.
type Service struct {
	dispatcher *Dispatcher
	runner     Runner
	statuses   StatusStore
	stager     *Stager
	now        func() time.Time
	log        *slog.Logger
}

func NewService(dispatcher *Dispatcher, runner Runner, statuses StatusStore, stager *Stager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		dispatcher: dispatcher,
		runner:     runner,
		statuses:   statuses,
		stager:     stager,
		now:        time.Now,
		log:        log.With(slog.String("component", "broadcast_service")),
	}
}

// Submit validates and queues a broadcast, returning its queued status immediately.
func (s *Service) Submit(ctx context.Context, actorID int64, text string, upload *Upload) (Status, error) {
	text = strings.TrimSpace(text)
	if err := validateMessage(text, upload != nil); err != nil {
		return Status{}, err
	}

	job := Job{ID: uuid.NewString(), ActorID: actorID, Text: text}

	if upload != nil {
		media, err := s.stager.Stage(upload.Name, upload.Reader)
		if errors.Is(err, ErrMediaTooLarge) {
			return Status{}, apperrors.NewValidationError(err.Error())
		}
		if err != nil {
			return Status{}, fmt.Errorf("stage broadcast media: %w", err)
		}
		job.Media = media
	}

	now := s.now()
	status := Status{
		ID:        job.ID,
		State:     StateQueued,
		ActorID:   actorID,
		Preview:   Preview(text, previewRunes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.statuses.Save(ctx, status); err != nil {
		s.discard(job)
		return Status{}, err
	}

	if err := s.runner.Submit(ctx, job); err != nil {
		s.discard(job)
		status.State = StateFailed
		status.Error = err.Error()
		status.UpdatedAt = s.now()
		s.save(context.WithoutCancel(ctx), status)
		return status, fmt.Errorf("submit broadcast: %w", err)
	}

	s.log.Info("broadcast queued",
		slog.String("broadcast_id", job.ID),
		slog.Int64("actor_id", actorID),
		slog.Bool("media", job.Media != nil),
	)

	return status, nil
}

// Execute runs job and keeps its status current. It is the handler for every Runner.
func (s *Service) Execute(ctx context.Context, job Job) (Result, error) {
	status, err := s.statuses.Get(ctx, job.ID)
	if err != nil {
		now := s.now()
		status = Status{ID: job.ID, ActorID: job.ActorID, Preview: Preview(job.Text, previewRunes), CreatedAt: now}
	}

	status.State = StateRunning
	status.UpdatedAt = s.now()
	s.save(ctx, status)

	result, runErr := s.dispatcher.Broadcast(ctx, job, func(r Result) {
		status.Result = r
		status.UpdatedAt = s.now()
		s.save(ctx, status)
	})

	status.Result = result
	status.UpdatedAt = s.now()
	switch {
	case runErr == nil:
		status.State = StateFinished
	case result.Cancelled:
		status.State = StateCancelled
		status.Error = runErr.Error()
	default:
		status.State = StateFailed
		status.Error = runErr.Error()
	}
	s.save(context.WithoutCancel(ctx), status)

	return result, runErr
}

// Drop marks a job that will never run as cancelled and removes its staged attachment.
func (s *Service) Drop(ctx context.Context, job Job) {
	s.discard(job)

	status, err := s.statuses.Get(ctx, job.ID)
	if err != nil {
		status = Status{ID: job.ID, ActorID: job.ActorID, Preview: Preview(job.Text, previewRunes), CreatedAt: s.now()}
	}
	status.State = StateCancelled
	status.Error = errDropped.Error()
	status.UpdatedAt = s.now()
	s.save(ctx, status)
}

func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	return s.statuses.Get(ctx, id)
}

func (s *Service) save(ctx context.Context, status Status) {
	if err := s.statuses.Save(ctx, status); err != nil {
		s.log.Warn("broadcast status not saved", slog.String("broadcast_id", status.ID), slog.Any("error", err))
	}
}

func (s *Service) discard(job Job) {
	if job.Media == nil {
		return
	}
	if err := s.stager.Remove(job.Media); err != nil {
		s.log.Warn("staged media not removed", slog.String("path", job.Media.Path), slog.Any("error", err))
	}
}

func validateMessage(text string, hasMedia bool) error {
	if text == "" && !hasMedia {
		return apperrors.NewValidationError("broadcast needs text or an attachment")
	}

	limit := maxTextRunes
	if hasMedia {
		limit = maxCaptionRunes
	}
	if utf8.RuneCountInString(text) > limit {
		return apperrors.NewValidationError(fmt.Sprintf("broadcast text exceeds %d characters", limit))
	}

	return nil
}
