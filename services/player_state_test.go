package services

import (
	"testing"
	"time"

	"math-duel-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPlayerAvailable(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()

	// No state row yet: available.
	ok, err := playerAvailable(env.db, "fresh", now, env.cfg.StaleStateAfter)
	require.NoError(t, err)
	assert.True(t, ok)

	// Queued players may re-join; enqueue is idempotent.
	require.NoError(t, env.queue.Enqueue(&models.QueueTicket{
		PlayerID: "queued", Mode: "ranked", Topic: "addition",
	}))
	ok, err = playerAvailable(env.db, "queued", now, env.cfg.StaleStateAfter)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaleInMatchStateUnblocksPlayer(t *testing.T) {
	env := newTestEnv(t)
	matchID := "m1"
	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		return setPlayerStateTx(tx, "p1", models.PlayerInMatch, &matchID, nil)
	}))

	_, err := env.mm.RequestMatch(MatchRequest{PlayerID: "p1", Mode: "ranked", Topic: "addition"})
	assert.ErrorIs(t, err, ErrAlreadyInMatch)

	// A state row nobody has touched for longer than the stale window stops
	// blocking — a crashed client must not lock the player out forever.
	env.clock.Advance(env.cfg.StaleStateAfter + time.Minute)
	res, err := env.mm.RequestMatch(MatchRequest{PlayerID: "p1", Mode: "ranked", Topic: "addition"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
}
