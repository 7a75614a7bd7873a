package models

import "time"

// PlayerProfile is a local snapshot of profile-service data the duel core
// needs per request (rating, display name, experience). Populated by the
// profile sync worker and updated transactionally at match completion.
type PlayerProfile struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	DisplayName    string `gorm:"index;not null" json:"display_name"`

	Rating      int `gorm:"default:1000" json:"rating"`
	GamesPlayed int `gorm:"default:0" json:"games_played"`
	Wins        int `gorm:"default:0" json:"wins"`
	Losses      int `gorm:"default:0" json:"losses"`
	Draws       int `gorm:"default:0" json:"draws"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	Timestamps
}
