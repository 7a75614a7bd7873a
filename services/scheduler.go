package services

import (
	"log"
	"time"

	"math-duel-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// SweepService runs the supervisor jobs: matchmaker sweep, round-lock sweep
// and inactivity auto-forfeit. No job owns a timer for an individual round —
// expiry is always evaluated against the stored end time.
type SweepService struct {
	DB         *gorm.DB
	Clock      clockwork.Clock
	Config     DuelConfig
	Matchmaker *MatchmakingService
	Rounds     *RoundService
	Matches    *MatchService
}

func NewSweepService(db *gorm.DB, clock clockwork.Clock, cfg DuelConfig,
	matchmaker *MatchmakingService, rounds *RoundService, matches *MatchService) *SweepService {
	return &SweepService{
		DB: db, Clock: clock, Config: cfg,
		Matchmaker: matchmaker, Rounds: rounds, Matches: matches,
	}
}

// StartDuelScheduler registers and starts all periodic jobs.
func (s *SweepService) StartDuelScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: pair waiting tickets, then purge expired ones
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			pairs, err := s.Matchmaker.SweepPair()
			if err != nil {
				log.Printf("[Scheduler] Matchmaker sweep failed: %v", err)
				return
			}
			if pairs > 0 {
				log.Printf("✅ Matchmaker sweep paired %d match(es)", pairs)
			}
		}),
	)

	// Every minute: lock overdue rounds and let advancement run
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			locked, err := s.Rounds.LockOverdueRounds()
			if err != nil {
				log.Printf("[Scheduler] Round-lock sweep failed: %v", err)
				return
			}
			if locked > 0 {
				log.Printf("✅ Round-lock sweep closed %d round(s)", locked)
			}
		}),
	)

	// Every two minutes: auto-forfeit players who stopped answering
	_, _ = sched.NewJob(
		gocron.DurationJob(2*time.Minute),
		gocron.NewTask(func() {
			forfeits, err := s.SweepInactiveMatches()
			if err != nil {
				log.Printf("[Scheduler] Inactivity sweep failed: %v", err)
				return
			}
			if forfeits > 0 {
				log.Printf("✅ Inactivity sweep forfeited %d match(es)", forfeits)
			}
		}),
	)
}

// SweepInactiveMatches auto-forfeits a player who left enough rounds
// unanswered in an old-enough match. At most one auto-forfeit per match per
// pass; a malformed match never aborts the rest of the batch.
func (s *SweepService) SweepInactiveMatches() (int, error) {
	cutoff := s.Clock.Now().Add(-s.Config.InactivityMatchAge)
	var stale []models.Match
	err := s.DB.
		Where("status = ? AND created_at <= ?", models.MatchActive, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	forfeits := 0
	for _, match := range stale {
		playerID, found, err := s.findInactivePlayer(&match)
		if err != nil {
			logSweepError("Inactivity", match.ID, err)
			continue
		}
		if !found {
			continue
		}
		if err := s.Matches.Forfeit(match.ID, playerID); err != nil {
			logSweepError("Inactivity", match.ID, err)
			continue
		}
		log.Printf("[Inactivity] Auto-forfeited player %s in match %s", playerID, match.ID)
		forfeits++
	}
	return forfeits, nil
}

// findInactivePlayer returns the first participant with at least the
// configured number of unanswered rounds, once the match has enough rounds
// for the rule to apply.
func (s *SweepService) findInactivePlayer(match *models.Match) (string, bool, error) {
	var totalRounds int64
	if err := s.DB.Model(&models.Round{}).
		Where("match_id = ?", match.ID).Count(&totalRounds).Error; err != nil {
		return "", false, err
	}
	if totalRounds < int64(s.Config.InactivityMinRounds) {
		return "", false, nil
	}

	for _, playerID := range []string{match.Player1ID, match.Player2ID} {
		var answered int64
		if err := s.DB.Model(&models.Answer{}).
			Where("match_id = ? AND player_id = ?", match.ID, playerID).
			Count(&answered).Error; err != nil {
			return "", false, err
		}
		if totalRounds-answered >= int64(s.Config.InactivityMinUnanswered) {
			return playerID, true, nil
		}
	}
	return "", false, nil
}

func logSweepError(job, itemID string, err error) {
	log.Printf("[%s] Skipping item %s: %v", job, itemID, err)
}
