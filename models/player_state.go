package models

import "time"

// PlayerState status values
const (
	PlayerIdle    = "idle"
	PlayerInQueue = "in_queue"
	PlayerInMatch = "in_match"
)

// PlayerState tracks a player's current participation. Every consumer that
// changes participation (queueing, matching, forfeiting, completion) keeps
// status and MatchID consistent. A state untouched for longer than the
// configured stale window is treated as idle for availability checks.
type PlayerState struct {
	PlayerID string  `gorm:"primaryKey" json:"player_id"`
	Status   string  `gorm:"type:varchar(16);default:'idle'" json:"status"` // idle/in_queue/in_match
	MatchID  *string `gorm:"index" json:"match_id,omitempty"`

	QueuedAt  *time.Time `json:"queued_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
