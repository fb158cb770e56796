// Package handlers holds the asynq task handlers run by the jobs worker.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/jobs"
)

type BroadcastHandler struct {
	execute broadcast.ExecuteFunc
	log     *slog.Logger
}

func NewBroadcastHandler(execute broadcast.ExecuteFunc, log *slog.Logger) *BroadcastHandler {
	if log == nil {
		log = slog.Default()
	}

	return &BroadcastHandler{execute: execute, log: log}
}

func (h *BroadcastHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job broadcast.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		h.log.ErrorContext(ctx, "broadcast: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode broadcast job: %w: %w", err, asynq.SkipRetry)
	}

	result, err := h.execute(ctx, job)
	if err != nil {
		return fmt.Errorf("broadcast %s: %w: %w", job.ID, err, asynq.SkipRetry)
	}

	h.log.InfoContext(ctx, "broadcast task done",
		slog.String("broadcast_id", job.ID),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)

	return nil
}

// SweepHandler removes staged media abandoned by runs that never finished.
type SweepHandler struct {
	stager *broadcast.Stager
	now    func() time.Time
	log    *slog.Logger
}

func NewSweepHandler(stager *broadcast.Stager, log *slog.Logger) *SweepHandler {
	if log == nil {
		log = slog.Default()
	}

	return &SweepHandler{stager: stager, now: time.Now, log: log}
}

func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.SweepMediaPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode sweep payload: %w: %w", err, asynq.SkipRetry)
	}

	removed, err := h.stager.Sweep(payload.MaxAge, h.now())
	if err != nil {
		return err
	}

	if removed > 0 {
		h.log.InfoContext(ctx, "stale broadcast media removed", slog.Int("files", removed))
	}

	return nil
}
