package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcastHandlerRunsDecodedJob(t *testing.T) {
	var got broadcast.Job
	h := NewBroadcastHandler(func(_ context.Context, job broadcast.Job) (broadcast.Result, error) {
		got = job
		return broadcast.Result{Total: 1, Sent: 1}, nil
	}, testLogger())

	task, err := jobs.NewBroadcastTask(broadcast.Job{ID: "j1", ActorID: 3, Text: "hi"}, "", time.Minute)
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, "j1", got.ID)
	assert.Equal(t, "hi", got.Text)
}

func TestBroadcastHandlerNeverAsksForRetry(t *testing.T) {
	h := NewBroadcastHandler(func(context.Context, broadcast.Job) (broadcast.Result, error) {
		return broadcast.Result{}, errors.New("roster unavailable")
	}, testLogger())

	task, err := jobs.NewBroadcastTask(broadcast.Job{ID: "j2"}, "", 0)
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeBroadcastSend, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSweepHandler(t *testing.T) {
	dir := t.TempDir()
	stager := broadcast.NewStager(dir, 0)

	m, err := stager.Stage("a.png", strings.NewReader("x"))
	require.NoError(t, err)

	h := NewSweepHandler(stager, testLogger())
	h.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	task, err := jobs.NewSweepMediaTask(time.Hour, "")
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))

	_, err = os.Stat(filepath.Join(dir, filepath.Base(m.Path)))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
