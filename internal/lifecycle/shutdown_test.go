package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsPhasesInOrder(t *testing.T) {
	s := NewShutdown(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		}
	}

	s.RegisterPhase(PhaseResources, "database", record("database", nil))
	s.Register("http", record("http", errors.New("timeout")))
	s.Register("bot", record("bot", nil))
	s.Register("nil", nil)

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http: timeout")

	require.Len(t, order, 3)
	assert.ElementsMatch(t, []string{"http", "bot"}, order[:2])
	assert.Equal(t, "database", order[2])
}
