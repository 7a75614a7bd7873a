package services

import (
	"context"
	"errors"

	"math-duel-system/models"
	"math-duel-system/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// RoundService is the round state machine: pending → active → locked.
// A round locks when both participants have answered or its end time has
// passed — evaluated here on every submission and again by the lock sweep,
// so no live timer process is needed to close a round.
type RoundService struct {
	DB      *gorm.DB
	Clock   clockwork.Clock
	Config  DuelConfig
	Judge   *AnswerJudge
	Matches *MatchService
}

func NewRoundService(db *gorm.DB, clock clockwork.Clock, cfg DuelConfig, judge *AnswerJudge, matches *MatchService) *RoundService {
	return &RoundService{DB: db, Clock: clock, Config: cfg, Judge: judge, Matches: matches}
}

// SubmitResult is what the submitting player gets back. A late submission
// never gets this far — it is rejected with ErrRoundLocked instead.
type SubmitResult struct {
	Correct     bool  `json:"correct"`
	TimeMs      int64 `json:"time_ms"`
	RoundLocked bool  `json:"round_locked"`
}

// SubmitAnswer validates, judges and records one player's answer, then locks
// the round if both players have now answered. Idempotent per player: a
// repeat submission returns the previously judged result untouched.
func (s *RoundService) SubmitAnswer(ctx context.Context, matchID, roundID, playerID, value, imageKey string) (*SubmitResult, error) {
	// Read-before-write: load everything needed to decide, judge outside the
	// write transaction, then re-read under locks before any write.
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
	if match.Status != models.MatchActive {
		return nil, ErrMatchNotActive
	}

	var round models.Round
	if err := s.DB.First(&round, "id = ? AND match_id = ?", roundID, matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}

	now := s.Clock.Now()
	if round.Status == models.RoundLocked {
		return nil, ErrRoundLocked
	}
	if now.Before(round.StartsAt) {
		return nil, ErrRoundNotStarted
	}
	if !now.Before(round.EndsAt) {
		// Too late: close the round now rather than waiting for the sweep.
		if err := s.lockExpiredRound(matchID, roundID); err != nil {
			return nil, err
		}
		return nil, ErrRoundLocked
	}

	elapsed := now.Sub(round.StartsAt).Milliseconds()

	submitted := value
	if match.WritingMode && imageKey != "" {
		submitted = utils.SheetURL(imageKey)
	}
	correct, judgeVersion := s.Judge.JudgeAnswer(ctx, round.Prompt, round.AnswerType, round.AnswerValue, submitted, match.WritingMode)

	result := &SubmitResult{Correct: correct, TimeMs: elapsed}
	lockedNow := false

	err := runInTx(s.DB, func(tx *gorm.DB) error {
		lockedNow = false

		var m models.Match
		if err := forUpdate(tx).
			First(&m, "id = ?", matchID).Error; err != nil {
			return err
		}
		if m.Status != models.MatchActive {
			return ErrMatchNotActive
		}

		var r models.Round
		if err := forUpdate(tx).
			First(&r, "id = ? AND match_id = ?", roundID, matchID).Error; err != nil {
			return err
		}
		if r.Status == models.RoundLocked {
			return ErrRoundLocked
		}
		if r.Status == models.RoundPending {
			r.Status = models.RoundActive
		}

		// Write-once per player: an existing judged answer is returned as-is.
		var existing models.Answer
		err := tx.Where("round_id = ? AND player_id = ?", r.ID, playerID).First(&existing).Error
		if err == nil {
			result.Correct = existing.Correct
			result.TimeMs = existing.ElapsedMs
			return tx.Save(&r).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		answer := models.Answer{
			ID:           uuid.NewString(),
			RoundID:      r.ID,
			PlayerID:     playerID,
			MatchID:      m.ID,
			Value:        value,
			ImageKey:     imageKey,
			SubmittedAt:  now,
			ElapsedMs:    elapsed,
			Correct:      correct,
			JudgedAt:     s.Clock.Now(),
			JudgeVersion: judgeVersion,
		}
		if err := tx.Create(&answer).Error; err != nil {
			return err
		}

		var opponent models.Answer
		err = tx.Where("round_id = ? AND player_id = ?", r.ID, m.OpponentOf(playerID)).
			First(&opponent).Error
		bothAnswered := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if bothAnswered || !s.Clock.Now().Before(r.EndsAt) {
			r.Status = models.RoundLocked
			lockedNow = true
		}
		return tx.Save(&r).Error
	})
	if err != nil {
		return nil, err
	}

	if lockedNow {
		result.RoundLocked = true
		// Direct in-process advancement after the locking transaction commits;
		// AdvanceOrFinalize is replay-safe if this call is ever duplicated.
		if err := s.Matches.AdvanceOrFinalize(matchID, roundID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// lockExpiredRound closes a round whose end time has passed and runs the
// normal advancement path. Used by late submissions and the lock sweep.
func (s *RoundService) lockExpiredRound(matchID, roundID string) error {
	locked := false
	err := runInTx(s.DB, func(tx *gorm.DB) error {
		locked = false

		var m models.Match
		if err := forUpdate(tx).
			First(&m, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if m.Status != models.MatchActive {
			return nil
		}

		var r models.Round
		if err := forUpdate(tx).
			First(&r, "id = ? AND match_id = ?", roundID, matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoundNotFound
			}
			return err
		}
		if r.Status == models.RoundLocked {
			return nil
		}
		if s.Clock.Now().Before(r.EndsAt) {
			return nil // raced with a submission that moved the round on
		}
		if r.Status == models.RoundPending {
			// store the activation on its own so the state history never
			// jumps pending → locked
			r.Status = models.RoundActive
			if err := tx.Save(&r).Error; err != nil {
				return err
			}
		}
		r.Status = models.RoundLocked
		locked = true
		return tx.Save(&r).Error
	})
	if err != nil {
		return err
	}
	if locked {
		return s.Matches.AdvanceOrFinalize(matchID, roundID)
	}
	return nil
}

// LockOverdueRounds is the periodic round sweep. Three passes: activate
// rounds whose window has opened, lock rounds whose end time has passed, and
// re-drive locked rounds whose finalize never ran — a crash between the lock
// commit and the advancement call must not strand the match. Errors are
// isolated per round.
func (s *RoundService) LockOverdueRounds() (int, error) {
	now := s.Clock.Now()

	res := s.DB.Model(&models.Round{}).
		Where("status = ? AND starts_at <= ?", models.RoundPending, now).
		Where("match_id IN (?)",
			s.DB.Model(&models.Match{}).Select("id").Where("status = ?", models.MatchActive)).
		Update("status", models.RoundActive)
	if res.Error != nil {
		return 0, res.Error
	}

	var overdue []models.Round
	err := s.DB.
		Joins("JOIN matches ON matches.id = rounds.match_id AND matches.status = ?", models.MatchActive).
		Where("rounds.status IN ? AND rounds.ends_at <= ?", []string{models.RoundPending, models.RoundActive}, now).
		Limit(s.Config.LockSweepBatch).
		Find(&overdue).Error
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, round := range overdue {
		if err := s.lockExpiredRound(round.MatchID, round.ID); err != nil {
			logSweepError("RoundLock", round.ID, err)
			continue
		}
		processed++
	}

	var stuck []models.Round
	err = s.DB.
		Joins("JOIN matches ON matches.id = rounds.match_id AND matches.status = ?", models.MatchActive).
		Where("rounds.status = ? AND rounds.finalized_at IS NULL", models.RoundLocked).
		Limit(s.Config.LockSweepBatch).
		Find(&stuck).Error
	if err != nil {
		return processed, err
	}
	for _, round := range stuck {
		if err := s.Matches.AdvanceOrFinalize(round.MatchID, round.ID); err != nil {
			logSweepError("RoundFinalize", round.ID, err)
			continue
		}
		processed++
	}
	return processed, nil
}
