package broadcast

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository/memory"
)

func TestRedisStatusStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStatusStore(client, time.Minute)

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	want := Status{ID: "abc", State: StateRunning, ActorID: 5, Result: Result{Total: 3, Sent: 1}}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.Result, got.Result)

	assert.Equal(t, time.Minute, mr.TTL("broadcast:status:abc"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "abc")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

type recordingRunner struct {
	jobs []Job
	err  error
}

func (r *recordingRunner) Submit(_ context.Context, job Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func TestSubmitValidatesMessage(t *testing.T) {
	runner := &recordingRunner{}
	svc := NewService(nil, runner, NewMemoryStatusStore(), NewStager(t.TempDir(), 0), testLogger())

	tests := []struct {
		name   string
		text   string
		upload *Upload
	}{
		{name: "empty", text: "   "},
		{name: "text too long", text: strings.Repeat("я", maxTextRunes+1)},
		{name: "caption too long", text: strings.Repeat("a", maxCaptionRunes+1), upload: &Upload{Name: "a.png", Reader: strings.NewReader("x")}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), 1, tc.text, tc.upload)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}

	assert.Empty(t, runner.jobs)
}

func TestSubmitRunnerFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	statuses := NewMemoryStatusStore()
	svc := NewService(nil, &recordingRunner{err: errors.New("queue down")}, statuses, NewStager(dir, 0), testLogger())

	status, err := svc.Submit(context.Background(), 1, "hi", &Upload{Name: "a.png", Reader: strings.NewReader("x")})
	require.Error(t, err)
	assert.Equal(t, StateFailed, status.State)

	stored, err := statuses.Get(context.Background(), status.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, stored.State)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServiceRunsJobThroughLocalRunner(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, 1, 2, 3)

	sender := newFakeSender(nil)
	stager := NewStager(t.TempDir(), 0)
	statuses := NewMemoryStatusStore()
	runner := NewLocalRunner(context.Background(), 1, time.Minute, testLogger())
	svc := NewService(newTestDispatcher(store, sender, stager, nil), runner, statuses, stager, testLogger())
	runner.Handle(svc.Execute)

	queued, err := svc.Submit(context.Background(), 42, "news", nil)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, queued.State)
	assert.Equal(t, "news", queued.Preview)

	runner.Wait()

	final, err := svc.Status(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, final.State)
	assert.Equal(t, Result{Total: 3, Sent: 3}, final.Result)
	assert.EqualValues(t, 42, final.ActorID)
}

func TestLocalRunnerSettlesJobsDroppedOnShutdown(t *testing.T) {
	store := memory.NewStore()
	stager := NewStager(t.TempDir(), 0)
	statuses := NewMemoryStatusStore()

	base, stop := context.WithCancel(context.Background())
	defer stop()

	runner := NewLocalRunner(base, 1, 0, testLogger())
	svc := NewService(newTestDispatcher(store, newFakeSender(nil), stager, nil), runner, statuses, stager, testLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	runner.Handle(func(ctx context.Context, job Job) (Result, error) {
		close(started)
		<-release
		return Result{}, nil
	})
	runner.OnDrop(svc.Drop)

	require.NoError(t, runner.Submit(context.Background(), Job{ID: "busy"}))
	<-started
	stop()

	queued, err := svc.Submit(context.Background(), 7, "late", &Upload{Name: "a.png", Reader: strings.NewReader("png")})
	require.NoError(t, err)

	close(release)
	runner.Wait()

	final, err := svc.Status(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, final.State)
	assert.NotEmpty(t, final.Error)

	entries, err := os.ReadDir(stager.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalRunnerWithoutHandler(t *testing.T) {
	runner := NewLocalRunner(context.Background(), 1, 0, testLogger())

	err := runner.Submit(context.Background(), Job{ID: "x"})
	assert.ErrorIs(t, err, errNoHandler)
}

func TestExecuteMarksCancelledRun(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store, 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := newFakeSender(func(int64, int) error {
		cancel()
		return nil
	})
	statuses := NewMemoryStatusStore()
	stager := NewStager(t.TempDir(), 0)
	svc := NewService(newTestDispatcher(store, sender, stager, nil), &recordingRunner{}, statuses, stager, testLogger())

	result, err := svc.Execute(ctx, Job{ID: "c", Text: "x"})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 1, result.Sent)

	status, err := statuses.Get(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, status.State)
}
