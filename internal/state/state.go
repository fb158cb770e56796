package state

import "time"

// State represents a finite-state machine state.
type State string

const (
	// StateIdle indicates that the bot is waiting for the next command.
	StateIdle State = "idle"
	// StateAwaitingBroadcast indicates that the admin's next message is the broadcast text.
	StateAwaitingBroadcast State = "awaiting_broadcast"
)

// UserState captures the current FSM state for a Telegram user.
type UserState struct {
	UserID       int64          `json:"user_id"`
	CurrentState State          `json:"current_state"`
	Context      map[string]any `json:"context"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
