package domain

import "time"

// User is an end user known to the bot. TelegramID is the external account id.
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Blocked    bool
	CreatedAt  time.Time
}

// UserExport is a roster row with the ids of individually purchased blocks.
type UserExport struct {
	User
	PurchasedBlocks []int64
	HasBundle       bool
}
