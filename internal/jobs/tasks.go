package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
)

const (
	TaskTypeBroadcastSend = "broadcast:send"
	TaskTypeSweepMedia    = "broadcast:sweep_media"
)

const QueueDefault = "broadcasts"

type SweepMediaPayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// NewBroadcastTask wraps a broadcast job. The queue never retries a run.
func NewBroadcastTask(job broadcast.Job, queue string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal broadcast job: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(orDefault(queue)),
		asynq.MaxRetry(0),
		asynq.TaskID(job.ID),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}

	return asynq.NewTask(TaskTypeBroadcastSend, payload, opts...), nil
}

func NewSweepMediaTask(maxAge time.Duration, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepMediaPayload{MaxAge: maxAge})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeSweepMedia, payload, asynq.Queue(orDefault(queue)), asynq.MaxRetry(1)), nil
}

func orDefault(queue string) string {
	if queue == "" {
		return QueueDefault
	}
	return queue
}
