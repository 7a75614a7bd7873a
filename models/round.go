package models

import "time"

// Round status values
const (
	RoundPending = "pending"
	RoundActive  = "active"
	RoundLocked  = "locked"
)

// Round is one timed question inside a match, ordered by RoundIndex starting
// at 1. Round n+1 is never created before round n is locked.
type Round struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID    string `gorm:"index:idx_rounds_match_round,unique;not null" json:"match_id"`
	RoundIndex int    `gorm:"index:idx_rounds_match_round,unique;not null" json:"round_index"`
	Status     string `gorm:"type:varchar(16);index;default:'pending'" json:"status"` // pending/active/locked

	Prompt string `gorm:"not null" json:"prompt"` // LaTeX-ish display text, e.g. "$7 \\times 8$"

	// Canonical answer spec — how to judge, independent of display prompt
	AnswerType  string `gorm:"type:varchar(16);not null" json:"answer_type"` // "integer" or "expression"
	AnswerValue string `gorm:"not null" json:"-"`                            // never serialized to clients
	ContentHash string `gorm:"not null" json:"content_hash"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `gorm:"index" json:"ends_at"`

	// One-shot guard: round results applied exactly once
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`

	// Per-player result snapshot, written when the round locks
	Player1Correct bool  `gorm:"default:false" json:"player1_correct"`
	Player2Correct bool  `gorm:"default:false" json:"player2_correct"`
	Player1TimeMs  int64 `gorm:"default:0" json:"player1_time_ms"`
	Player2TimeMs  int64 `gorm:"default:0" json:"player2_time_ms"`

	Timestamps
}

// Answer is one player's submission for a round. Immutable once judged —
// a repeat submission never overwrites it.
type Answer struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	RoundID  string `gorm:"index:idx_answers_round_player,unique;not null" json:"round_id"`
	PlayerID string `gorm:"index:idx_answers_round_player,unique;not null" json:"player_id"`
	MatchID  string `gorm:"index;not null" json:"match_id"`

	Value    string `json:"value"`
	ImageKey string `json:"image_key,omitempty"` // object-storage key of the handwritten sheet, writing mode only

	SubmittedAt time.Time `json:"submitted_at"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Correct     bool      `json:"correct"`

	JudgedAt     time.Time `json:"judged_at"`
	JudgeVersion string    `gorm:"type:varchar(32)" json:"judge_version"`

	Timestamps
}
