package services

import (
	"log"
	"os"
	"strconv"
	"time"
)

// DuelConfig carries the tunable duel constants. The draw epsilon and the
// inactivity thresholds were fixed constants historically; they are kept
// configurable here with the historical values as defaults.
type DuelConfig struct {
	DefaultRoundCount      int
	DefaultRoundDurationMs int
	RoundGap               time.Duration // delay between a round locking and the next one starting

	TicketTTL             time.Duration // queue ticket lifetime
	CandidateSafetyMargin time.Duration // tickets this close to expiry are not matchable
	SweepTicketLimit      int           // max waiting tickets per matchmaker sweep pass

	DrawEpsilonMs int64 // total-time difference treated as equal for winner determination

	InactivityMatchAge      time.Duration // matches younger than this are never auto-forfeited
	InactivityMinRounds     int           // a match needs at least this many rounds before forfeit applies
	InactivityMinUnanswered int           // unanswered rounds that trigger auto-forfeit

	StaleStateAfter time.Duration // player states unchanged this long count as idle
	LockSweepBatch  int           // max overdue rounds locked per sweep pass
}

// LoadDuelConfig builds the config from environment variables with defaults.
func LoadDuelConfig() DuelConfig {
	return DuelConfig{
		DefaultRoundCount:      envInt("DUEL_ROUND_COUNT", 10),
		DefaultRoundDurationMs: envInt("DUEL_ROUND_DURATION_MS", 30000),
		RoundGap:               envDuration("DUEL_ROUND_GAP", 2*time.Second),

		TicketTTL:             envDuration("DUEL_TICKET_TTL", 2*time.Minute),
		CandidateSafetyMargin: envDuration("DUEL_TICKET_SAFETY_MARGIN", 10*time.Second),
		SweepTicketLimit:      envInt("DUEL_SWEEP_TICKET_LIMIT", 100),

		DrawEpsilonMs: int64(envInt("DUEL_DRAW_EPSILON_MS", 100)),

		InactivityMatchAge:      envDuration("DUEL_INACTIVITY_MATCH_AGE", 2*time.Minute),
		InactivityMinRounds:     envInt("DUEL_INACTIVITY_MIN_ROUNDS", 3),
		InactivityMinUnanswered: envInt("DUEL_INACTIVITY_MIN_UNANSWERED", 3),

		StaleStateAfter: envDuration("DUEL_STALE_STATE_AFTER", 5*time.Minute),
		LockSweepBatch:  envInt("DUEL_LOCK_SWEEP_BATCH", 300),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, raw, fallback)
		return fallback
	}
	return v
}
