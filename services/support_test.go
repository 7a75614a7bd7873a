package services

import (
	"fmt"
	"testing"
	"time"

	"math-duel-system/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory store per test. Connections are
// pinned to one so transactions serialize the same way the production store
// does under row locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.QueueTicket{},
		&models.PlayerState{},
		&models.PlayerProfile{},
		&models.Match{},
		&models.Round{},
		&models.Answer{},
		&models.RatingHistory{},
	))
	return db
}

func testConfig() DuelConfig {
	return DuelConfig{
		DefaultRoundCount:      3,
		DefaultRoundDurationMs: 30000,
		RoundGap:               2 * time.Second,

		TicketTTL:             2 * time.Minute,
		CandidateSafetyMargin: 10 * time.Second,
		SweepTicketLimit:      100,

		DrawEpsilonMs: 100,

		InactivityMatchAge:      2 * time.Minute,
		InactivityMinRounds:     3,
		InactivityMinUnanswered: 3,

		StaleStateAfter: 5 * time.Minute,
		LockSweepBatch:  300,
	}
}

// testEnv wires the full service graph against a fresh store and a fake
// clock anchored at the current wall time, so stored auto-timestamps and
// clock-derived times stay comparable.
type testEnv struct {
	db       *gorm.DB
	clock    *clockwork.FakeClock
	cfg      DuelConfig
	profiles *ProfileService
	queue    *QueueService
	matches  *MatchService
	rounds   *RoundService
	mm       *MatchmakingService
	sweeps   *SweepService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clock := clockwork.NewFakeClockAt(time.Now())
	cfg := testConfig()

	profiles := NewProfileService(db)
	queue := NewQueueService(db, clock, cfg)
	matches := NewMatchService(db, clock, cfg)
	rounds := NewRoundService(db, clock, cfg, NewAnswerJudge(nil), matches)
	mm := NewMatchmakingService(db, clock, cfg, queue, matches, profiles)
	sweeps := NewSweepService(db, clock, cfg, mm, rounds, matches)

	return &testEnv{
		db: db, clock: clock, cfg: cfg,
		profiles: profiles, queue: queue, matches: matches,
		rounds: rounds, mm: mm, sweeps: sweeps,
	}
}

func (e *testEnv) seedProfile(t *testing.T, playerID string, rating, games int) {
	t.Helper()
	profile := models.PlayerProfile{
		ID:             uuid.NewString(),
		ExternalUserID: playerID,
		DisplayName:    "Player-" + playerID,
		Rating:         rating,
		GamesPlayed:    games,
	}
	require.NoError(t, e.db.Create(&profile).Error)
}

func (e *testEnv) ticketCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.QueueTicket{}).Count(&n).Error)
	return n
}

func (e *testEnv) loadMatch(t *testing.T, id string) models.Match {
	t.Helper()
	var m models.Match
	require.NoError(t, e.db.First(&m, "id = ?", id).Error)
	return m
}

func (e *testEnv) loadRound(t *testing.T, matchID string, index int) models.Round {
	t.Helper()
	var r models.Round
	require.NoError(t, e.db.First(&r, "match_id = ? AND round_index = ?", matchID, index).Error)
	return r
}

func (e *testEnv) playerStatus(t *testing.T, playerID string) string {
	t.Helper()
	var state models.PlayerState
	require.NoError(t, e.db.First(&state, "player_id = ?", playerID).Error)
	return state.Status
}
