package services

import (
	"time"

	"math-duel-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// setPlayerStateTx upserts a player's participation state inside tx. Every
// consumer that changes participation (queueing, matching, forfeiting,
// completion) goes through here so status and match reference stay in step.
func setPlayerStateTx(tx *gorm.DB, playerID, status string, matchID *string, queuedAt *time.Time) error {
	state := models.PlayerState{
		PlayerID: playerID,
		Status:   status,
		MatchID:  matchID,
		QueuedAt: queuedAt,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "match_id", "queued_at", "updated_at"}),
	}).Create(&state).Error
}

// playerAvailable reports whether the player can enter a new queue or match.
// A state row untouched for longer than staleAfter is treated as idle — a
// crashed client must not lock a player out forever.
func playerAvailable(tx *gorm.DB, playerID string, now time.Time, staleAfter time.Duration) (bool, error) {
	var state models.PlayerState
	err := tx.Where("player_id = ?", playerID).First(&state).Error
	if err == gorm.ErrRecordNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if state.Status == models.PlayerIdle {
		return true, nil
	}
	if now.Sub(state.UpdatedAt) > staleAfter {
		return true, nil
	}
	// a queued player may re-join (enqueue is idempotent); only an active
	// match blocks
	return state.Status != models.PlayerInMatch, nil
}
