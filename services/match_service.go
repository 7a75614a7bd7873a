package services

import (
	"errors"
	"log"
	"math/rand"
	"time"

	"math-duel-system/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// MatchService governs the match lifecycle: creation (match + round 1
// atomically), advancement when a round locks, finalization with exactly-once
// rating application, and forfeits.
type MatchService struct {
	DB     *gorm.DB
	Clock  clockwork.Clock
	Config DuelConfig
}

func NewMatchService(db *gorm.DB, clock clockwork.Clock, cfg DuelConfig) *MatchService {
	return &MatchService{DB: db, Clock: clock, Config: cfg}
}

// PlayerSeat is one side of a new match.
type PlayerSeat struct {
	PlayerID    string
	DisplayName string
	Rating      int
}

// MatchSettings configures a new match. Zero values fall back to the duel
// config defaults; Seed 0 means "pick one".
type MatchSettings struct {
	RoundCount      int
	RoundDurationMs int
	Category        string
	Difficulty      string
	WritingMode     bool
	Seed            int64
}

// CreateMatch writes the match and its first round in one transaction
// (all-or-nothing) and returns the new match id.
func (s *MatchService) CreateMatch(p1, p2 PlayerSeat, mode string, settings MatchSettings) (string, error) {
	var id string
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		match, err := s.createMatchTx(tx, p1, p2, mode, settings)
		if err != nil {
			return err
		}
		id = match.ID
		return nil
	})
	return id, err
}

func (s *MatchService) createMatchTx(tx *gorm.DB, p1, p2 PlayerSeat, mode string, settings MatchSettings) (*models.Match, error) {
	if settings.RoundCount <= 0 {
		settings.RoundCount = s.Config.DefaultRoundCount
	}
	if settings.RoundDurationMs <= 0 {
		settings.RoundDurationMs = s.Config.DefaultRoundDurationMs
	}
	if settings.Category == "" {
		settings.Category = CategoryAddition
	}
	if settings.Difficulty == "" {
		settings.Difficulty = "normal"
	}
	if settings.Seed == 0 {
		settings.Seed = rand.Int63()
	}

	match := &models.Match{
		ID:                 uuid.NewString(),
		Status:             models.MatchActive,
		Mode:               mode,
		Category:           settings.Category,
		Difficulty:         settings.Difficulty,
		RoundCount:         settings.RoundCount,
		RoundDurationMs:    settings.RoundDurationMs,
		WritingMode:        settings.WritingMode,
		Player1ID:          p1.PlayerID,
		Player2ID:          p2.PlayerID,
		Player1Name:        p1.DisplayName,
		Player2Name:        p2.DisplayName,
		Player1RatingStart: p1.Rating,
		Player2RatingStart: p2.Rating,
		Seed:               settings.Seed,
	}
	if err := tx.Create(match).Error; err != nil {
		return nil, err
	}

	round1 := s.buildRound(match, 1, s.Clock.Now().Add(s.Config.RoundGap))
	if err := tx.Create(round1).Error; err != nil {
		return nil, err
	}
	return match, nil
}

// buildRound derives round n from the match seed — both participants see the
// identical problem without a central dealer.
func (s *MatchService) buildRound(match *models.Match, index int, startsAt time.Time) *models.Round {
	g := GenerateRound(match.Seed, index, match.Category, match.Difficulty)
	return &models.Round{
		ID:          uuid.NewString(),
		MatchID:     match.ID,
		RoundIndex:  index,
		Status:      models.RoundPending,
		Prompt:      g.Prompt,
		AnswerType:  g.AnswerType,
		AnswerValue: g.AnswerValue,
		ContentHash: g.ContentHash,
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(time.Duration(match.RoundDurationMs) * time.Millisecond),
	}
}

// playerRoundResult is one player's outcome for a locked round. A missing
// answer counts as incorrect with the full round duration elapsed.
type playerRoundResult struct {
	correct   bool
	elapsedMs int64
}

// AdvanceOrFinalize runs when a round transitions to locked: it applies the
// round results to the match and either creates the next round or completes
// the match. Safe under retried or duplicate invocations — the round's
// FinalizedAt, the next-round existence check and the match's RatingProcessed
// flag each make replay a no-op.
func (s *MatchService) AdvanceOrFinalize(matchID, roundID string) error {
	var completed *models.Match
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		completed = nil

		var match models.Match
		if err := forUpdate(tx).
			First(&match, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if match.Status != models.MatchActive {
			return nil // match already completed or cancelled (e.g. forfeit won the race)
		}

		var round models.Round
		if err := forUpdate(tx).
			First(&round, "id = ? AND match_id = ?", roundID, matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoundNotFound
			}
			return err
		}
		if round.Status != models.RoundLocked {
			return nil // not our trigger yet
		}
		if round.FinalizedAt != nil {
			return nil // replayed event
		}

		var answers []models.Answer
		if err := tx.Where("round_id = ?", round.ID).Find(&answers).Error; err != nil {
			return err
		}
		duration := int64(match.RoundDurationMs)
		r1 := resultFor(answers, match.Player1ID, duration)
		r2 := resultFor(answers, match.Player2ID, duration)

		now := s.Clock.Now()
		round.Player1Correct = r1.correct
		round.Player2Correct = r2.correct
		round.Player1TimeMs = r1.elapsedMs
		round.Player2TimeMs = r2.elapsedMs
		round.FinalizedAt = &now
		if err := tx.Save(&round).Error; err != nil {
			return err
		}

		if r1.correct {
			match.Player1Correct++
		}
		if r2.correct {
			match.Player2Correct++
		}
		match.Player1TimeMs += r1.elapsedMs
		match.Player2TimeMs += r2.elapsedMs

		if round.RoundIndex >= match.RoundCount {
			winnerID, result1 := decideWinner(s.Config, &match)
			if err := s.completeMatchTx(tx, &match, winnerID, result1); err != nil {
				return err
			}
			completed = &match
			return nil
		}

		// Next round: the existence check makes advancement idempotent when
		// both players' submissions race to lock the same round.
		var next models.Round
		err := tx.Where("match_id = ? AND round_index = ?", match.ID, round.RoundIndex+1).
			First(&next).Error
		if err == nil {
			return tx.Save(&match).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		nextRound := s.buildRound(&match, round.RoundIndex+1, now.Add(s.Config.RoundGap))
		if err := tx.Create(nextRound).Error; err != nil {
			return err
		}
		return tx.Save(&match).Error
	})
	if err != nil {
		return err
	}

	if completed != nil {
		// Post-commit cleanup: failures here must not undo a completed match.
		s.resetPlayerStates(completed)
	}
	return nil
}

func resultFor(answers []models.Answer, playerID string, fullDurationMs int64) playerRoundResult {
	for _, a := range answers {
		if a.PlayerID == playerID {
			return playerRoundResult{correct: a.Correct, elapsedMs: a.ElapsedMs}
		}
	}
	return playerRoundResult{correct: false, elapsedMs: fullDurationMs}
}

// decideWinner applies the shared winner rule: surrender loses outright;
// otherwise higher correct count wins, ties go to the lower total time, and
// totals within the draw epsilon are a draw. Returns the winner (nil for a
// draw) and the result from player 1's perspective.
func decideWinner(cfg DuelConfig, m *models.Match) (*string, float64) {
	switch {
	case m.Player1Surrendered:
		return &m.Player2ID, models.ResultLoss
	case m.Player2Surrendered:
		return &m.Player1ID, models.ResultWin
	case m.Player1Correct > m.Player2Correct:
		return &m.Player1ID, models.ResultWin
	case m.Player1Correct < m.Player2Correct:
		return &m.Player2ID, models.ResultLoss
	}

	dt := m.Player1TimeMs - m.Player2TimeMs
	if dt < 0 {
		dt = -dt
	}
	if dt <= cfg.DrawEpsilonMs {
		return nil, models.ResultDraw
	}
	if m.Player1TimeMs < m.Player2TimeMs {
		return &m.Player1ID, models.ResultWin
	}
	return &m.Player2ID, models.ResultLoss
}

// completeMatchTx marks the match completed and applies ratings. The
// RatingProcessed one-shot is checked and set inside the same transaction
// that reads player experience and writes new ratings, history entries and
// win/loss/draw counters — replayed finalize triggers are no-ops.
func (s *MatchService) completeMatchTx(tx *gorm.DB, match *models.Match, winnerID *string, result1 float64) error {
	if match.Status != models.MatchActive {
		return nil
	}
	now := s.Clock.Now()
	match.Status = models.MatchCompleted
	match.WinnerID = winnerID
	match.CompletedAt = &now

	if !match.RatingProcessed {
		p1, err := lockProfileTx(tx, match.Player1ID)
		if err != nil {
			return err
		}
		p2, err := lockProfileTx(tx, match.Player2ID)
		if err != nil {
			return err
		}

		c1, c2 := ComputeNewRatings(p1.Rating, p2.Rating, result1, p1.GamesPlayed, p2.GamesPlayed)

		applyOutcome(p1, c1, result1)
		applyOutcome(p2, c2, 1.0-result1)
		if err := tx.Save(p1).Error; err != nil {
			return err
		}
		if err := tx.Save(p2).Error; err != nil {
			return err
		}

		entries := []models.RatingHistory{
			{ID: uuid.NewString(), PlayerID: p1.ExternalUserID, MatchID: match.ID, OldRating: c1.Old, NewRating: c1.New, Delta: c1.Delta},
			{ID: uuid.NewString(), PlayerID: p2.ExternalUserID, MatchID: match.ID, OldRating: c2.Old, NewRating: c2.New, Delta: c2.Delta},
		}
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}

		match.RatingProcessed = true
		match.Player1RatingNew = c1.New
		match.Player2RatingNew = c2.New
		match.Player1RatingDelta = c1.Delta
		match.Player2RatingDelta = c2.Delta
	}

	return tx.Save(match).Error
}

func lockProfileTx(tx *gorm.DB, playerID string) (*models.PlayerProfile, error) {
	var profile models.PlayerProfile
	err := forUpdate(tx).
		Where("external_user_id = ?", playerID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ensureProfileTx(tx, playerID)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func applyOutcome(p *models.PlayerProfile, change RatingChange, result float64) {
	p.Rating = change.New
	p.GamesPlayed++
	switch result {
	case models.ResultWin:
		p.Wins++
	case models.ResultLoss:
		p.Losses++
	default:
		p.Draws++
	}
}

// Forfeit handles an explicit surrender: the surrendering player loses and
// the match completes immediately. Also used by the inactivity sweep.
func (s *MatchService) Forfeit(matchID, playerID string) error {
	var completed *models.Match
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		completed = nil

		var match models.Match
		if err := forUpdate(tx).
			First(&match, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if !match.IsParticipant(playerID) {
			return ErrNotParticipant
		}
		if match.Status != models.MatchActive {
			return ErrMatchNotActive
		}

		if playerID == match.Player1ID {
			match.Player1Surrendered = true
		} else {
			match.Player2Surrendered = true
		}

		winnerID, result1 := decideWinner(s.Config, &match)
		if err := s.completeMatchTx(tx, &match, winnerID, result1); err != nil {
			return err
		}
		completed = &match
		return nil
	})
	if err != nil {
		return err
	}
	if completed != nil {
		s.resetPlayerStates(completed)
	}
	return nil
}

// resetPlayerStates idles both participants after completion. Failures are
// logged, never fatal — the completed match stays completed.
func (s *MatchService) resetPlayerStates(match *models.Match) {
	for _, playerID := range []string{match.Player1ID, match.Player2ID} {
		err := runInTx(s.DB, func(tx *gorm.DB) error {
			return setPlayerStateTx(tx, playerID, models.PlayerIdle, nil, nil)
		})
		if err != nil {
			log.Printf("[Match] Failed to reset state for player %s after match %s: %v", playerID, match.ID, err)
		}
	}
}

// MatchSnapshot is the best-effort client view: the authoritative state lives
// in the transactional store, this is read without locks.
type MatchSnapshot struct {
	Match  models.Match   `json:"match"`
	Rounds []models.Round `json:"rounds"`
}

// GetSnapshot returns the match and its rounds, ordered by index. Only
// participants may view a match.
func (s *MatchService) GetSnapshot(matchID, playerID string) (*MatchSnapshot, error) {
	var match models.Match
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if !match.IsParticipant(playerID) {
		return nil, ErrNotParticipant
	}

	var rounds []models.Round
	if err := s.DB.Where("match_id = ?", matchID).Order("round_index ASC").Find(&rounds).Error; err != nil {
		return nil, err
	}
	return &MatchSnapshot{Match: match, Rounds: rounds}, nil
}
