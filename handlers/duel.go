package handlers

import (
	"errors"
	"log"
	"path/filepath"

	"math-duel-system/middleware"
	"math-duel-system/services"
	"math-duel-system/utils"

	"github.com/gofiber/fiber/v2"
)

// DuelHandler exposes the duel core over HTTP.
type DuelHandler struct {
	Matchmaker *services.MatchmakingService
	Queue      *services.QueueService
	Rounds     *services.RoundService
	Matches    *services.MatchService
}

func SetupDuelRoutes(app *fiber.App, h *DuelHandler) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/duels/queue", h.RequestMatch)
	secured.Delete("/duels/queue", h.CancelQueue)
	secured.Get("/duels/:match_id", h.GetMatch)
	secured.Post("/duels/:match_id/forfeit", h.Forfeit)
	secured.Post("/duels/:match_id/rounds/:round_id/answer", h.SubmitAnswer)
	secured.Post("/duels/:match_id/rounds/:round_id/sheet", h.UploadSheet)
}

// RequestMatch tries an instant pairing and queues a ticket otherwise.
func (h *DuelHandler) RequestMatch(c *fiber.Ctx) error {
	var req struct {
		Mode        string `json:"mode"`
		Topic       string `json:"topic"`
		Difficulty  string `json:"difficulty"`
		WritingMode bool   `json:"writing_mode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	result, err := h.Matchmaker.RequestMatch(services.MatchRequest{
		PlayerID:    c.Locals("user_id").(string),
		Mode:        req.Mode,
		Topic:       req.Topic,
		Difficulty:  req.Difficulty,
		WritingMode: req.WritingMode,
	})
	if err != nil {
		return duelError(c, err)
	}
	return c.Status(200).JSON(result)
}

// CancelQueue removes the caller's outstanding ticket.
func (h *DuelHandler) CancelQueue(c *fiber.Ctx) error {
	if err := h.Queue.Dequeue(c.Locals("user_id").(string)); err != nil {
		return duelError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetMatch returns the caller's view of a match and its rounds.
func (h *DuelHandler) GetMatch(c *fiber.Ctx) error {
	snapshot, err := h.Matches.GetSnapshot(c.Params("match_id"), c.Locals("user_id").(string))
	if err != nil {
		return duelError(c, err)
	}
	return c.JSON(snapshot)
}

// Forfeit surrenders the match; the opponent wins immediately.
func (h *DuelHandler) Forfeit(c *fiber.Ctx) error {
	if err := h.Matches.Forfeit(c.Params("match_id"), c.Locals("user_id").(string)); err != nil {
		return duelError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// SubmitAnswer judges and records the caller's answer for a round.
func (h *DuelHandler) SubmitAnswer(c *fiber.Ctx) error {
	var req struct {
		Value    string `json:"value"`
		ImageKey string `json:"image_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	result, err := h.Rounds.SubmitAnswer(
		c.Context(),
		c.Params("match_id"),
		c.Params("round_id"),
		c.Locals("user_id").(string),
		req.Value,
		req.ImageKey,
	)
	if err != nil {
		return duelError(c, err)
	}
	return c.JSON(result)
}

// UploadSheet stores a handwritten answer-sheet image for a writing-mode
// round and returns the key to submit with the answer.
func (h *DuelHandler) UploadSheet(c *fiber.Ctx) error {
	playerID := c.Locals("user_id").(string)
	matchID := c.Params("match_id")
	roundID := c.Params("round_id")

	fileHeader, err := c.FormFile("sheet")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "sheet file required", "details": err.Error()})
	}

	key := utils.SheetKey(matchID, roundID, playerID, filepath.Ext(fileHeader.Filename))
	url, err := utils.UploadSheet(fileHeader, key)
	if err != nil {
		log.Printf("Failed to upload sheet for match %s round %s: %v", matchID, roundID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to store answer sheet"})
	}
	return c.JSON(fiber.Map{"image_key": key, "url": url})
}

// duelError maps service sentinels to distinguishable HTTP responses.
// Precondition classes are never collapsed into a generic error.
func duelError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotParticipant):
		return c.Status(403).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrMatchNotFound), errors.Is(err, services.ErrRoundNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrRoundLocked):
		return c.Status(409).JSON(fiber.Map{"error": err.Error(), "reason": "round_locked"})
	case errors.Is(err, services.ErrRoundNotStarted),
		errors.Is(err, services.ErrMatchNotActive),
		errors.Is(err, services.ErrAlreadyInMatch):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotQueued):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("Internal error on %s: %v", c.Path(), err)
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}
}
