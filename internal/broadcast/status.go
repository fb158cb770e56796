package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

// State is the lifecycle position of a broadcast run.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Status is what the admin polls while a run is in flight and after it ends.
type Status struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	ActorID   int64     `json:"actor_id"`
	Preview   string    `json:"preview"`
	Result    Result    `json:"result"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StatusStore interface {
	Save(ctx context.Context, status Status) error
	// Get returns errors.ErrNotFound for an unknown or expired id.
	Get(ctx context.Context, id string) (Status, error)
}

const statusKeyPattern = "broadcast:status:%s"

// RedisStatusStore keeps statuses as JSON strings with a TTL.
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusStore(client *redis.Client, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, ttl: ttl}
}

func (s *RedisStatusStore) Save(ctx context.Context, status Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal broadcast status: %w", err)
	}

	if err := s.client.Set(ctx, fmt.Sprintf(statusKeyPattern, status.ID), payload, s.ttl).Err(); err != nil {
		return apperrors.NewDatabaseError(fmt.Errorf("save broadcast status: %w", err))
	}

	return nil
}

func (s *RedisStatusStore) Get(ctx context.Context, id string) (Status, error) {
	raw, err := s.client.Get(ctx, fmt.Sprintf(statusKeyPattern, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, apperrors.NewNotFoundError("broadcast", id)
	}
	if err != nil {
		return Status{}, apperrors.NewDatabaseError(fmt.Errorf("get broadcast status: %w", err))
	}

	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return Status{}, fmt.Errorf("decode broadcast status: %w", err)
	}

	return status, nil
}

// MemoryStatusStore is used when Redis is disabled. Entries never expire.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]Status)}
}

func (s *MemoryStatusStore) Save(_ context.Context, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[status.ID] = status

	return nil
}

func (s *MemoryStatusStore) Get(_ context.Context, id string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[id]
	if !ok {
		return Status{}, apperrors.NewNotFoundError("broadcast", id)
	}

	return status, nil
}
