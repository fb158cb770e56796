package domain

import "time"

// Block groups questions and is the unit of purchase.
type Block struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsPaid      bool      `json:"is_paid"`
	Price       float64   `json:"price"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlockAccess is a block annotated with whether a given user may open it.
type BlockAccess struct {
	Block
	Accessible bool `json:"accessible"`
}

type Question struct {
	ID        int64     `json:"id"`
	BlockID   int64     `json:"block_id"`
	Text      string    `json:"text"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// View records that a user was shown a question.
type View struct {
	ID         int64
	UserID     int64
	QuestionID int64
	CreatedAt  time.Time
}

// BlockViews is a block with its total view count.
type BlockViews struct {
	BlockID int64  `json:"block_id"`
	Title   string `json:"title"`
	Views   int64  `json:"views"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	Users     int64        `json:"users"`
	Views     int64        `json:"views"`
	Purchases int64        `json:"purchases"`
	TopBlocks []BlockViews `json:"top_blocks"`
}
