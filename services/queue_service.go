package services

import (
	"log"

	"math-duel-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueService owns outstanding match requests (tickets) with expiry.
type QueueService struct {
	DB     *gorm.DB
	Clock  clockwork.Clock
	Config DuelConfig
}

func NewQueueService(db *gorm.DB, clock clockwork.Clock, cfg DuelConfig) *QueueService {
	return &QueueService{DB: db, Clock: clock, Config: cfg}
}

// NormalizeTopic slugs free-form topic input so "Integrals Basic" and
// "integrals-basic" land in the same queue bucket.
func NormalizeTopic(topic string) string {
	return slug.Make(topic)
}

// Enqueue upserts the player's ticket (idempotent re-join: a second enqueue
// replaces the existing ticket rather than erroring) and marks the player
// in-queue, in one transaction.
func (s *QueueService) Enqueue(ticket *models.QueueTicket) error {
	now := s.Clock.Now()
	ticket.ID = uuid.NewString()
	ticket.Topic = NormalizeTopic(ticket.Topic)
	ticket.EnqueuedAt = now
	ticket.ExpiresAt = now.Add(s.Config.TicketTTL)

	return runInTx(s.DB, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "player_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mode", "topic", "difficulty", "rating", "display_name",
				"enqueued_at", "expires_at", "updated_at",
			}),
		}).Create(ticket).Error; err != nil {
			return err
		}
		return setPlayerStateTx(tx, ticket.PlayerID, models.PlayerInQueue, nil, &now)
	})
}

// Dequeue removes the player's ticket (explicit cancel) and resets the
// player to idle. Returns ErrNotQueued when there is nothing to cancel.
func (s *QueueService) Dequeue(playerID string) error {
	return runInTx(s.DB, func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("player_id = ?", playerID).Delete(&models.QueueTicket{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotQueued
		}
		return setPlayerStateTx(tx, playerID, models.PlayerIdle, nil, nil)
	})
}

// ListCandidates returns matchable tickets for a mode+topic, oldest first.
// Tickets within the safety margin of expiry are excluded so a match is never
// built on a ticket that will vanish before the match can be created.
func (s *QueueService) ListCandidates(mode, topic string, limit int) ([]models.QueueTicket, error) {
	cutoff := s.Clock.Now().Add(s.Config.CandidateSafetyMargin)
	var tickets []models.QueueTicket
	err := s.DB.
		Where("mode = ? AND topic = ? AND expires_at > ?", mode, NormalizeTopic(topic), cutoff).
		Order("enqueued_at ASC").
		Limit(limit).
		Find(&tickets).Error
	return tickets, err
}

// ListWaiting returns all matchable tickets regardless of mode/topic, oldest
// first — the scheduled sweep's working set.
func (s *QueueService) ListWaiting(limit int) ([]models.QueueTicket, error) {
	cutoff := s.Clock.Now().Add(s.Config.CandidateSafetyMargin)
	var tickets []models.QueueTicket
	err := s.DB.
		Where("expires_at > ?", cutoff).
		Order("enqueued_at ASC").
		Limit(limit).
		Find(&tickets).Error
	return tickets, err
}

// ExpireStale hard-deletes tickets whose expiry has passed and idles their
// players. Returns the number of tickets removed.
func (s *QueueService) ExpireStale() (int, error) {
	now := s.Clock.Now()
	var expired []models.QueueTicket
	if err := s.DB.Where("expires_at <= ?", now).Find(&expired).Error; err != nil {
		return 0, err
	}

	removed := 0
	for _, ticket := range expired {
		gone, err := s.expireTicketIfStale(ticket)
		if err != nil {
			// one bad ticket must not abort the rest of the batch
			log.Printf("[Queue] Failed to expire ticket %s: %v", ticket.ID, err)
			continue
		}
		if gone {
			removed++
		}
	}
	return removed, nil
}

// expireTicketIfStale re-checks expiry inside the delete transaction: the
// enqueue upsert keeps the row id, so a player who re-joined between the scan
// and the delete holds a refreshed ticket that must stay queued.
func (s *QueueService) expireTicketIfStale(ticket models.QueueTicket) (bool, error) {
	removed := false
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		removed = false
		res := tx.Unscoped().
			Where("id = ? AND expires_at <= ?", ticket.ID, s.Clock.Now()).
			Delete(&models.QueueTicket{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // matched, cancelled or re-enqueued meanwhile
		}
		removed = true
		return setPlayerStateTx(tx, ticket.PlayerID, models.PlayerIdle, nil, nil)
	})
	return removed, err
}
