package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	spec           string
	queue          string
	mediaTTL       time.Duration
	log            *slog.Logger
}

// NewScheduler builds the periodic sweep of staged broadcast media.
func NewScheduler(redisOpt asynq.RedisConnOpt, spec, queue string, mediaTTL time.Duration, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		spec:           spec,
		queue:          queue,
		mediaTTL:       mediaTTL,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	if s.spec == "" {
		return nil
	}

	task, err := NewSweepMediaTask(s.mediaTTL, s.queue)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.spec, task); err != nil {
		return err
	}

	s.log.InfoContext(context.Background(), "scheduler: registered media sweep", slog.String("spec", s.spec))

	return nil
}

func (s *scheduler) Run() {
	s.log.InfoContext(context.Background(), "scheduler: starting")

	go func() {
		if err := s.asynqScheduler.Run(); err != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")

	s.asynqScheduler.Shutdown()
}
