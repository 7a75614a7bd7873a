package models

import "time"

// Match status values
const (
	MatchActive    = "active"
	MatchCompleted = "completed"
	MatchCancelled = "cancelled"
)

// Duel results from a player's perspective
const (
	ResultWin  = 1.0
	ResultDraw = 0.5
	ResultLoss = 0.0
)

// Match is one head-to-head duel between two players. Rounds are generated
// deterministically from Seed so both sides see identical problems.
type Match struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	Status string `gorm:"type:varchar(16);index;default:'active'" json:"status"` // active/completed/cancelled
	Mode   string `gorm:"type:varchar(16);not null" json:"mode"`

	// Settings frozen at creation
	Category        string `gorm:"not null" json:"category"`
	Difficulty      string `gorm:"type:varchar(16);default:'normal'" json:"difficulty"`
	RoundCount      int    `gorm:"not null" json:"round_count"`
	RoundDurationMs int    `gorm:"not null" json:"round_duration_ms"`
	WritingMode     bool   `gorm:"default:false" json:"writing_mode"` // handwritten answer sheets, vision-judged

	Player1ID   string `gorm:"index;not null" json:"player1_id"`
	Player2ID   string `gorm:"index;not null" json:"player2_id"`
	Player1Name string `json:"player1_name"`
	Player2Name string `json:"player2_name"`

	// Per-player running summary, updated as rounds lock
	Player1RatingStart int   `json:"player1_rating_start"`
	Player2RatingStart int   `json:"player2_rating_start"`
	Player1Correct     int   `gorm:"default:0" json:"player1_correct"`
	Player2Correct     int   `gorm:"default:0" json:"player2_correct"`
	Player1TimeMs      int64 `gorm:"default:0" json:"player1_time_ms"`
	Player2TimeMs      int64 `gorm:"default:0" json:"player2_time_ms"`
	Player1Surrendered bool  `gorm:"default:false" json:"player1_surrendered"`
	Player2Surrendered bool  `gorm:"default:false" json:"player2_surrendered"`

	Seed     int64   `gorm:"not null" json:"seed"`
	WinnerID *string `gorm:"index" json:"winner_id,omitempty"` // nil = draw or still running

	// One-shot guard: ratings applied exactly once per match
	RatingProcessed bool `gorm:"default:false" json:"rating_processed"`

	// Rating-change snapshot written together with RatingProcessed
	Player1RatingNew   int `json:"player1_rating_new"`
	Player2RatingNew   int `json:"player2_rating_new"`
	Player1RatingDelta int `json:"player1_rating_delta"`
	Player2RatingDelta int `json:"player2_rating_delta"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// IsParticipant reports whether playerID is one of the two duelists.
func (m *Match) IsParticipant(playerID string) bool {
	return playerID == m.Player1ID || playerID == m.Player2ID
}

// OpponentOf returns the other player's id. Caller must have checked
// IsParticipant first.
func (m *Match) OpponentOf(playerID string) string {
	if playerID == m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}
