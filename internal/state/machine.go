package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPattern = "quiz:dialog:lock:%d"
	lockTTL        = 5 * time.Second
)

var (
	// ErrInvalidTransition indicates that a requested FSM transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a user state record does not exist.
	ErrStateNotFound = errors.New("user state not found")
	// ErrStateLocked indicates that a concurrent operation already holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
)

// releaseLock deletes the lock only while it still holds our token, so a lock that
// expired and was taken by another update is left alone.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe FSM transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// StateMachine tracks the multi-step bot dialogs, such as an admin composing a broadcast.
type StateMachine interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	SetState(ctx context.Context, userID int64, state State, contextData map[string]any) error
	TransitionTo(ctx context.Context, userID int64, newState State) error
	ClearState(ctx context.Context, userID int64) error
}

type machine struct {
	storage Storage
	locks   *redis.Client
	log     *slog.Logger
}

// NewStateMachine creates a FSM over storage. Writes for one user are serialized through a
// Redis lock when redisClient is set; without it the lock is skipped, as the memory storage
// only lives in one process.
func NewStateMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) StateMachine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage: storage,
		locks:   redisClient,
		log:     log.With(slog.String("component", "dialog_state")),
	}
}

func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	return m.storage.GetState(ctx, userID)
}

// SetState stores state unconditionally, replacing any dialog in progress.
func (m *machine) SetState(ctx context.Context, userID int64, state State, contextData map[string]any) error {
	return m.withLock(ctx, userID, func() error {
		return m.storage.SetState(ctx, userID, &UserState{UserID: userID, CurrentState: state, Context: contextData})
	})
}

// TransitionTo moves the user to newState if the transition table allows it. A user without
// stored state is idle.
func (m *machine) TransitionTo(ctx context.Context, userID int64, newState State) error {
	return m.withLock(ctx, userID, func() error {
		current := StateIdle
		stored, err := m.storage.GetState(ctx, userID)
		switch {
		case errors.Is(err, ErrStateNotFound):
		case err != nil:
			return err
		case stored != nil:
			current = stored.CurrentState
		}

		if !IsTransitionAllowed(current, newState) {
			m.log.Warn("invalid state transition",
				slog.Int64("telegram_id", userID),
				slog.String("from", string(current)),
				slog.String("to", string(newState)),
			)
			return ErrInvalidTransition
		}

		transitionRecorder(string(current), string(newState))

		return m.storage.SetState(ctx, userID, &UserState{UserID: userID, CurrentState: newState})
	})
}

// ClearState returns the user to idle by dropping the stored state.
func (m *machine) ClearState(ctx context.Context, userID int64) error {
	return m.withLock(ctx, userID, func() error {
		return m.storage.ClearState(ctx, userID)
	})
}

// withLock runs fn while holding the user's lock. A held lock fails fast with ErrStateLocked.
func (m *machine) withLock(ctx context.Context, userID int64, fn func() error) error {
	if m.locks == nil {
		return fn()
	}

	key := fmt.Sprintf(lockKeyPattern, userID)
	token := uuid.NewString()

	acquired, err := m.locks.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		m.log.Error("state lock not acquired", slog.Int64("telegram_id", userID), slog.Any("error", err))
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !acquired {
		m.log.Warn("state lock already held", slog.Int64("telegram_id", userID))
		return ErrStateLocked
	}

	defer func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), m.locks, []string{key}, token).Err(); err != nil {
			m.log.Error("state lock not released", slog.Int64("telegram_id", userID), slog.Any("error", err))
		}
	}()

	return fn()
}
