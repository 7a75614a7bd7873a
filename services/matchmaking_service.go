package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"math-duel-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// errTicketGone signals that a ticket vanished (matched, cancelled or
// expired) between the scan and the pairing transaction.
var errTicketGone = errors.New("ticket no longer in queue")

// MatchmakingService pairs players of similar skill. Two entry points share
// one compatibility policy: instant matching on join, and the periodic sweep
// over waiting tickets.
type MatchmakingService struct {
	DB       *gorm.DB
	Clock    clockwork.Clock
	Config   DuelConfig
	Queue    *QueueService
	Matches  *MatchService
	Profiles *ProfileService
}

func NewMatchmakingService(db *gorm.DB, clock clockwork.Clock, cfg DuelConfig,
	queue *QueueService, matches *MatchService, profiles *ProfileService) *MatchmakingService {
	return &MatchmakingService{
		DB: db, Clock: clock, Config: cfg,
		Queue: queue, Matches: matches, Profiles: profiles,
	}
}

// acceptableRange is the rating window a ticket accepts, expanding with its
// own queue time so long waiters eventually find someone.
func acceptableRange(waited time.Duration) int {
	switch {
	case waited < 30*time.Second:
		return 100
	case waited < 60*time.Second:
		return 200
	case waited < 90*time.Second:
		return 300
	default:
		return 400
	}
}

// MatchRequest is a player's join request.
type MatchRequest struct {
	PlayerID    string
	Mode        string
	Topic       string
	Difficulty  string
	WritingMode bool
}

// MatchRequestResult reports either an instant match or a queued ticket.
type MatchRequestResult struct {
	Queued  bool    `json:"queued"`
	MatchID *string `json:"match_id"`
}

// RequestMatch tries an instant pairing against the queue and enqueues a
// ticket when nothing qualifies.
func (s *MatchmakingService) RequestMatch(req MatchRequest) (*MatchRequestResult, error) {
	if req.PlayerID == "" || req.Mode == "" || req.Topic == "" {
		return nil, fmt.Errorf("%w: player, mode and topic are required", ErrInvalidRequest)
	}

	now := s.Clock.Now()
	available, err := playerAvailable(s.DB, req.PlayerID, now, s.Config.StaleStateAfter)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrAlreadyInMatch
	}

	profile, err := s.Profiles.EnsureProfile(req.PlayerID)
	if err != nil {
		return nil, err
	}

	// Instant match: scan waiting tickets, each candidate qualifies within
	// its own expanded range; smallest rating difference wins, scan order
	// (earliest enqueued) breaks ties.
	candidates, err := s.Queue.ListCandidates(req.Mode, req.Topic, s.Config.SweepTicketLimit)
	if err != nil {
		return nil, err
	}
	var best *models.QueueTicket
	bestDiff := 0
	for i := range candidates {
		cand := &candidates[i]
		if cand.PlayerID == req.PlayerID {
			continue
		}
		diff := absInt(cand.Rating - profile.Rating)
		if diff > acceptableRange(now.Sub(cand.EnqueuedAt)) {
			continue
		}
		if best == nil || diff < bestDiff {
			best = cand
			bestDiff = diff
		}
	}

	if best != nil {
		seat := PlayerSeat{PlayerID: req.PlayerID, DisplayName: profile.DisplayName, Rating: profile.Rating}
		matchID, err := s.pairTicketWithRequester(*best, seat, req)
		if err == nil {
			return &MatchRequestResult{Queued: false, MatchID: &matchID}, nil
		}
		if !errors.Is(err, errTicketGone) {
			return nil, err
		}
		log.Printf("[Matchmaker] Candidate ticket %s vanished mid-pairing, enqueueing %s instead", best.ID, req.PlayerID)
	}

	ticket := &models.QueueTicket{
		PlayerID:    req.PlayerID,
		Mode:        req.Mode,
		Topic:       req.Topic,
		Difficulty:  req.Difficulty,
		Rating:      profile.Rating,
		DisplayName: profile.DisplayName,
	}
	if err := s.Queue.Enqueue(ticket); err != nil {
		return nil, err
	}
	return &MatchRequestResult{Queued: true, MatchID: nil}, nil
}

// pairTicketWithRequester matches an incoming request against an existing
// ticket: match + round 1 creation, ticket removal and both player states
// flip to in-match in one transaction. The waiting side seats as player 1.
func (s *MatchmakingService) pairTicketWithRequester(ticket models.QueueTicket, requester PlayerSeat, req MatchRequest) (string, error) {
	var matchID string
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		var locked models.QueueTicket
		err := forUpdate(tx).
			First(&locked, "id = ?", ticket.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errTicketGone
		}
		if err != nil {
			return err
		}

		settings := MatchSettings{
			Category:    locked.Topic,
			Difficulty:  locked.Difficulty,
			WritingMode: req.WritingMode,
		}
		seat1 := PlayerSeat{PlayerID: locked.PlayerID, DisplayName: locked.DisplayName, Rating: locked.Rating}
		match, err := s.Matches.createMatchTx(tx, seat1, requester, locked.Mode, settings)
		if err != nil {
			return err
		}
		matchID = match.ID

		// remove the candidate's ticket and any stale ticket of the requester
		if err := tx.Unscoped().
			Where("id = ? OR player_id = ?", locked.ID, requester.PlayerID).
			Delete(&models.QueueTicket{}).Error; err != nil {
			return err
		}

		for _, playerID := range []string{locked.PlayerID, requester.PlayerID} {
			if err := setPlayerStateTx(tx, playerID, models.PlayerInMatch, &match.ID, nil); err != nil {
				return err
			}
		}
		return nil
	})
	return matchID, err
}

// SweepPair is the scheduled pass over waiting tickets: greedy from the
// oldest ticket outward, a pair qualifies within the larger of the two
// expanded ranges, so a long waiter can reach a fresh ticket. Returns the
// number of matches created.
func (s *MatchmakingService) SweepPair() (int, error) {
	now := s.Clock.Now()
	tickets, err := s.Queue.ListWaiting(s.Config.SweepTicketLimit)
	if err != nil {
		return 0, err
	}

	matched := make(map[string]bool)
	pairs := 0
	for i := range tickets {
		ti := tickets[i]
		if matched[ti.ID] {
			continue
		}

		var best *models.QueueTicket
		bestDiff := 0
		for j := i + 1; j < len(tickets); j++ {
			tj := &tickets[j]
			if matched[tj.ID] || tj.Mode != ti.Mode || tj.Topic != ti.Topic {
				continue
			}
			allowed := maxInt(
				acceptableRange(now.Sub(ti.EnqueuedAt)),
				acceptableRange(now.Sub(tj.EnqueuedAt)),
			)
			diff := absInt(ti.Rating - tj.Rating)
			if diff > allowed {
				continue
			}
			if best == nil || diff < bestDiff {
				best = tj
				bestDiff = diff
			}
		}
		if best == nil {
			continue
		}

		if _, err := s.pairTickets(ti, *best); err != nil {
			logSweepError("Matchmaker", ti.ID, err)
			continue
		}
		matched[ti.ID] = true
		matched[best.ID] = true
		pairs++
	}

	// finally drop everything whose expiry has passed
	if _, err := s.Queue.ExpireStale(); err != nil {
		log.Printf("[Matchmaker] Ticket expiry pass failed: %v", err)
	}
	return pairs, nil
}

// pairTickets pairs two waiting tickets; the older ticket seats as player 1.
func (s *MatchmakingService) pairTickets(t1, t2 models.QueueTicket) (string, error) {
	var matchID string
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		// lock in id order so racing pair attempts cannot deadlock
		ids := []string{t1.ID, t2.ID}
		if ids[0] > ids[1] {
			ids[0], ids[1] = ids[1], ids[0]
		}
		var locked []models.QueueTicket
		if err := forUpdate(tx).
			Where("id IN ?", ids).Order("id ASC").Find(&locked).Error; err != nil {
			return err
		}
		if len(locked) != 2 {
			return errTicketGone
		}

		settings := MatchSettings{
			Category:   t1.Topic,
			Difficulty: t1.Difficulty,
		}
		seat1 := PlayerSeat{PlayerID: t1.PlayerID, DisplayName: t1.DisplayName, Rating: t1.Rating}
		seat2 := PlayerSeat{PlayerID: t2.PlayerID, DisplayName: t2.DisplayName, Rating: t2.Rating}
		match, err := s.Matches.createMatchTx(tx, seat1, seat2, t1.Mode, settings)
		if err != nil {
			return err
		}
		matchID = match.ID

		if err := tx.Unscoped().Where("id IN ?", ids).Delete(&models.QueueTicket{}).Error; err != nil {
			return err
		}
		for _, playerID := range []string{t1.PlayerID, t2.PlayerID} {
			if err := setPlayerStateTx(tx, playerID, models.PlayerInMatch, &match.ID, nil); err != nil {
				return err
			}
		}
		return nil
	})
	return matchID, err
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
