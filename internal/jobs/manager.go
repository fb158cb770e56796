package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) Close() error {
	return m.client.Close()
}

// QueueRunner hands broadcast jobs to the asynq queue so that any worker process can run them.
type QueueRunner struct {
	manager Manager
	queue   string
	timeout time.Duration
	log     *slog.Logger
}

var _ broadcast.Runner = (*QueueRunner)(nil)

func NewQueueRunner(manager Manager, queue string, timeout time.Duration, log *slog.Logger) *QueueRunner {
	if log == nil {
		log = slog.Default()
	}

	return &QueueRunner{manager: manager, queue: queue, timeout: timeout, log: log}
}

func (r *QueueRunner) Submit(ctx context.Context, job broadcast.Job) error {
	task, err := NewBroadcastTask(job, r.queue, r.timeout)
	if err != nil {
		return err
	}

	info, err := r.manager.Enqueue(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue broadcast %s: %w", job.ID, err)
	}

	r.log.InfoContext(ctx, "broadcast enqueued", slog.String("broadcast_id", job.ID), slog.String("queue", info.Queue))

	return nil
}
