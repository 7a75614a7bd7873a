package services

import (
	"errors"
	"fmt"

	"math-duel-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRating is assigned when a player has no synced profile yet.
const DefaultRating = 1000

// ProfileService is the duel core's view of the profile store: rating,
// display name and experience, served from the locally mirrored
// player_profiles table.
type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// EnsureProfile returns the player's mirror row, creating a default one if
// the sync worker has not delivered it yet (idempotent).
func (s *ProfileService) EnsureProfile(playerID string) (*models.PlayerProfile, error) {
	return ensureProfileTx(s.DB, playerID)
}

func ensureProfileTx(tx *gorm.DB, playerID string) (*models.PlayerProfile, error) {
	var profile models.PlayerProfile
	err := tx.Where("external_user_id = ?", playerID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.PlayerProfile{
			ID:             uuid.NewString(),
			ExternalUserID: playerID,
			DisplayName:    fmt.Sprintf("Player-%.8s", playerID),
			Rating:         DefaultRating,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return nil, err
		}
		return &profile, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileService) GetRating(playerID string) (int, error) {
	profile, err := s.EnsureProfile(playerID)
	if err != nil {
		return 0, err
	}
	return profile.Rating, nil
}

func (s *ProfileService) GetDisplayName(playerID string) (string, error) {
	profile, err := s.EnsureProfile(playerID)
	if err != nil {
		return "", err
	}
	return profile.DisplayName, nil
}

func (s *ProfileService) GetGamesPlayed(playerID string) (int, error) {
	profile, err := s.EnsureProfile(playerID)
	if err != nil {
		return 0, err
	}
	return profile.GamesPlayed, nil
}
