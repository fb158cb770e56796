// Package events publishes domain events for downstream consumers.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TypePurchaseGranted   = "purchase.granted"
	TypeBroadcastFinished = "broadcast.finished"
)

// Event is serialised as JSON. Type doubles as the routing key.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New stamps an event with the current time.
func New(eventType string, payload any) Event {
	return Event{Type: eventType, OccurredAt: time.Now().UTC(), Payload: payload}
}

// PurchaseGranted is the payload of TypePurchaseGranted.
type PurchaseGranted struct {
	TelegramID int64  `json:"telegram_id"`
	BlockID    *int64 `json:"block_id,omitempty"`
	Bundle     bool   `json:"bundle"`
}

// BroadcastFinished is the payload of TypeBroadcastFinished.
type BroadcastFinished struct {
	BroadcastID string `json:"broadcast_id"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	Unreachable int    `json:"unreachable"`
	Cancelled   bool   `json:"cancelled"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}
