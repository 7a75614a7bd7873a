package models

import "time"

// RatingHistory is append-only: exactly one entry per player per completed
// match, written in the same transaction that flips Match.RatingProcessed.
type RatingHistory struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID string `gorm:"index;not null" json:"player_id"`
	MatchID  string `gorm:"index;not null" json:"match_id"`

	OldRating int `gorm:"not null" json:"old_rating"`
	NewRating int `gorm:"not null" json:"new_rating"`
	Delta     int `gorm:"not null" json:"delta"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (RatingHistory) TableName() string {
	return "rating_history"
}
