package models

import "time"

// QueueTicket is a player's outstanding request to be matched.
// At most one live ticket per player — enforced by the unique index and
// upsert-on-enqueue (idempotent re-join).
type QueueTicket struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID    string `gorm:"uniqueIndex;not null" json:"player_id"`
	Mode        string `gorm:"type:varchar(16);not null" json:"mode"` // e.g. "ranked", "casual"
	Topic       string `gorm:"index;not null" json:"topic"`           // slugged category, e.g. "integrals"
	Difficulty  string `gorm:"type:varchar(16);default:'normal'" json:"difficulty"`
	Rating      int    `json:"rating"` // rating snapshot at enqueue time
	DisplayName string `json:"display_name"`

	EnqueuedAt time.Time `gorm:"index" json:"enqueued_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`

	Timestamps
}
