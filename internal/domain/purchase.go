package domain

import "time"

// Purchase grants access. A nil BlockID is the all-blocks bundle.
type Purchase struct {
	ID        int64
	UserID    int64
	BlockID   *int64
	CreatedAt time.Time
}

// IsBundle reports whether the purchase covers every paid block.
func (p Purchase) IsBundle() bool {
	return p.BlockID == nil
}

// AuditLog is an administrative action record.
type AuditLog struct {
	ID        int64     `json:"id"`
	ActorID   int64     `json:"actor_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
