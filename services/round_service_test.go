package services

import (
	"context"
	"testing"
	"time"

	"math-duel-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestRound creates a match and moves the clock into round 1's window.
func startTestRound(t *testing.T, env *testEnv, roundCount int) models.Match {
	t.Helper()
	match := createTestMatch(t, env, roundCount)
	env.clock.Advance(env.cfg.RoundGap + time.Second)
	return match
}

func correctAnswerFor(match models.Match, index int) string {
	return GenerateRound(match.Seed, index, match.Category, match.Difficulty).AnswerValue
}

func TestSubmitAnswerBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	match := createTestMatch(t, env, 3)
	round := env.loadRound(t, match.ID, 1)

	_, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", "7", "")
	assert.ErrorIs(t, err, ErrRoundNotStarted)
}

func TestSubmitAnswerGuards(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)
	round := env.loadRound(t, match.ID, 1)

	_, err := env.rounds.SubmitAnswer(context.Background(), "missing", round.ID, "p1", "7", "")
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = env.rounds.SubmitAnswer(context.Background(), match.ID, "missing", "p1", "7", "")
	assert.ErrorIs(t, err, ErrRoundNotFound)

	_, err = env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "stranger", "7", "")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSubmitAnswerJudgesAndActivatesRound(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)
	round := env.loadRound(t, match.ID, 1)

	res, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", correctAnswerFor(match, 1), "")
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.InDelta(t, 1000, res.TimeMs, 1) // submitted 1s into the round
	assert.False(t, res.RoundLocked)

	// First submission moves the round from pending to active.
	round = env.loadRound(t, match.ID, 1)
	assert.Equal(t, models.RoundActive, round.Status)
}

func TestSubmitAnswerIsWriteOncePerPlayer(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)
	round := env.loadRound(t, match.ID, 1)

	first, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", correctAnswerFor(match, 1), "")
	require.NoError(t, err)
	require.True(t, first.Correct)

	env.clock.Advance(5 * time.Second)
	again, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", "wrong", "")
	require.NoError(t, err)
	assert.True(t, again.Correct, "repeat submission returns the original verdict")
	assert.Equal(t, first.TimeMs, again.TimeMs)

	var count int64
	require.NoError(t, env.db.Model(&models.Answer{}).
		Where("round_id = ? AND player_id = ?", round.ID, "p1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBothAnswersLockRoundAndAdvance(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)
	round := env.loadRound(t, match.ID, 1)

	_, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", correctAnswerFor(match, 1), "")
	require.NoError(t, err)

	env.clock.Advance(2 * time.Second)
	res, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p2", "not-even-close", "")
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.True(t, res.RoundLocked)

	round = env.loadRound(t, match.ID, 1)
	assert.Equal(t, models.RoundLocked, round.Status)
	require.NotNil(t, round.FinalizedAt)
	assert.True(t, round.Player1Correct)
	assert.False(t, round.Player2Correct)

	// Advancement created round 2 immediately after the lock.
	round2 := env.loadRound(t, match.ID, 2)
	assert.Equal(t, models.RoundPending, round2.Status)

	// The locked round rejects any further submissions.
	_, err = env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p2", "5", "")
	assert.ErrorIs(t, err, ErrRoundLocked)
}

func TestLateSubmissionLocksExpiredRound(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)
	round := env.loadRound(t, match.ID, 1)

	env.clock.Advance(time.Duration(match.RoundDurationMs)*time.Millisecond + time.Second)
	_, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", "7", "")
	assert.ErrorIs(t, err, ErrRoundLocked)

	// The late submission closed the round and advancement ran.
	round = env.loadRound(t, match.ID, 1)
	assert.Equal(t, models.RoundLocked, round.Status)
	require.NotNil(t, round.FinalizedAt)
	assert.False(t, round.Player1Correct)
	assert.Equal(t, int64(match.RoundDurationMs), round.Player1TimeMs)

	round2 := env.loadRound(t, match.ID, 2)
	assert.Equal(t, models.RoundPending, round2.Status)
}

func TestLockOverdueRounds(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)

	// Nothing overdue while the round window is open.
	locked, err := env.rounds.LockOverdueRounds()
	require.NoError(t, err)
	assert.Zero(t, locked)

	env.clock.Advance(time.Duration(match.RoundDurationMs) * time.Millisecond)
	locked, err = env.rounds.LockOverdueRounds()
	require.NoError(t, err)
	assert.Equal(t, 1, locked)

	round := env.loadRound(t, match.ID, 1)
	assert.Equal(t, models.RoundLocked, round.Status)
	round2 := env.loadRound(t, match.ID, 2)
	assert.Equal(t, models.RoundPending, round2.Status)
}

func TestSweepActivatesDueRounds(t *testing.T) {
	env := newTestEnv(t)
	match := createTestMatch(t, env, 3)

	// Window not open yet: the sweep leaves the round pending.
	locked, err := env.rounds.LockOverdueRounds()
	require.NoError(t, err)
	assert.Zero(t, locked)
	assert.Equal(t, models.RoundPending, env.loadRound(t, match.ID, 1).Status)

	// Inside the window the sweep activates without locking, so the stored
	// state never jumps straight from pending to locked.
	env.clock.Advance(env.cfg.RoundGap + time.Second)
	locked, err = env.rounds.LockOverdueRounds()
	require.NoError(t, err)
	assert.Zero(t, locked)
	assert.Equal(t, models.RoundActive, env.loadRound(t, match.ID, 1).Status)
}

func TestSweepRedrivesLockedUnfinalizedRound(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 3)

	// The round locked but the advancement call never ran (crash between the
	// lock commit and the trigger).
	lockRoundWithAnswers(t, env, match, 1, true, false, 3000, 4000)
	require.Nil(t, env.loadRound(t, match.ID, 1).FinalizedAt)

	env.clock.Advance(2 * time.Hour)
	processed, err := env.rounds.LockOverdueRounds()
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	round := env.loadRound(t, match.ID, 1)
	require.NotNil(t, round.FinalizedAt)
	assert.True(t, round.Player1Correct)

	round2 := env.loadRound(t, match.ID, 2)
	assert.Equal(t, models.RoundPending, round2.Status)
	assert.Equal(t, models.MatchActive, env.loadMatch(t, match.ID).Status)
}

func TestSweepFinalizesStuckFinalRound(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 1)

	lockRoundWithAnswers(t, env, match, 1, true, false, 3000, 4000)
	env.clock.Advance(2 * time.Hour)
	_, err := env.rounds.LockOverdueRounds()
	require.NoError(t, err)

	done := env.loadMatch(t, match.ID)
	assert.Equal(t, models.MatchCompleted, done.Status)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, "p1", *done.WinnerID)
	assert.True(t, done.RatingProcessed)
}

func TestFullMatchThroughSubmissions(t *testing.T) {
	env := newTestEnv(t)
	match := startTestRound(t, env, 2)

	for index := 1; index <= 2; index++ {
		round := env.loadRound(t, match.ID, index)

		_, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p1", correctAnswerFor(match, index), "")
		require.NoError(t, err)
		env.clock.Advance(time.Second)
		res, err := env.rounds.SubmitAnswer(context.Background(), match.ID, round.ID, "p2", "0", "")
		require.NoError(t, err)
		require.True(t, res.RoundLocked)

		// move into the next round's window
		env.clock.Advance(env.cfg.RoundGap + time.Second)
	}

	done := env.loadMatch(t, match.ID)
	assert.Equal(t, models.MatchCompleted, done.Status)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, "p1", *done.WinnerID)
	assert.Equal(t, 2, done.Player1Correct)
	assert.Equal(t, 0, done.Player2Correct)
	assert.True(t, done.RatingProcessed)

	// Submissions against a completed match are refused.
	lastRound := env.loadRound(t, match.ID, 2)
	_, err := env.rounds.SubmitAnswer(context.Background(), match.ID, lastRound.ID, "p1", "1", "")
	assert.ErrorIs(t, err, ErrMatchNotActive)
}
