package bot

import (
	"errors"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/handlers"
	"github.com/zanti495-bot/web-bot-outloud/internal/state"
)

// Dispatcher routes incoming updates to state-specific handlers.
type Dispatcher struct {
	fsm           state.StateMachine
	stateHandlers map[state.State]handlers.Handler
	log           *slog.Logger
	mu            sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(fsm state.StateMachine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		fsm:           fsm,
		stateHandlers: make(map[state.State]handlers.Handler),
		log:           log,
	}
}

// RegisterStateHandler registers a handler for the provided state.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateHandlers[s] = h
}

// Resolve returns the handler for the sender's current state, or nil when none is registered.
// A user without stored state is idle.
func (d *Dispatcher) Resolve(c telebot.Context) (handlers.Handler, error) {
	if c == nil || c.Sender() == nil || d.fsm == nil {
		return nil, nil
	}

	current := state.StateIdle
	userState, err := d.fsm.GetState(handlers.Context(c), c.Sender().ID)
	switch {
	case errors.Is(err, state.ErrStateNotFound):
	case err != nil:
		return nil, err
	case userState != nil:
		current = userState.CurrentState
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateHandlers[current], nil
}
