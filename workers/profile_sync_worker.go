package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"math-duel-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredProfile matches the JSON the profile service returns for changed
// players.
type MirroredProfile struct {
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	Rating      int       `json:"rating"`
	GamesPlayed int       `json:"games_played"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the sync response.
type GetProfileChangesResponse struct {
	Profiles []MirroredProfile `json:"profiles"`
}

// ProfileSyncWorker keeps the local player_profiles mirror in step with the
// profile service so queue and match paths never need a per-request remote
// call for rating, display name or experience.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, profileServiceBaseURL, endpointPath, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      profileServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Profile Sync Worker (profile-service → player_profiles)…")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	// initial backfill from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial profile sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("❌ Profile sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Profile Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent LastSyncedAt from the local mirror.
func (w *ProfileSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	w.db.Model(&models.PlayerProfile{}).
		Select("COALESCE(MAX(last_synced_at), TO_TIMESTAMP(0))").
		Scan(&lastTime)
	return lastTime
}

func (w *ProfileSyncWorker) fetchChanges(ctx context.Context, since time.Time) ([]MirroredProfile, error) {
	u, err := url.Parse(w.baseURL + w.endpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile service URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call profile service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return response.Profiles, nil
}

func (w *ProfileSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	changed, err := w.fetchChanges(ctx, since)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	now := time.Now().UTC()
	mirrors := make([]models.PlayerProfile, 0, len(changed))
	for _, p := range changed {
		mirrors = append(mirrors, models.PlayerProfile{
			ID:             uuid.NewString(),
			ExternalUserID: p.ExternalID,
			DisplayName:    p.DisplayName,
			Rating:         p.Rating,
			GamesPlayed:    p.GamesPlayed,
			Wins:           p.Wins,
			Losses:         p.Losses,
			Draws:          p.Draws,
			LastSyncedAt:   &now,
		})
	}

	// bulk upsert in one statement; ratings the duel core already advanced
	// locally are overwritten by the profile service's authoritative value
	if err := w.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "rating", "games_played",
			"wins", "losses", "draws", "last_synced_at", "updated_at",
		}),
	}).Create(&mirrors).Error; err != nil {
		return fmt.Errorf("failed to upsert %d profile(s): %w", len(mirrors), err)
	}

	log.Printf("📥 Synced %d profile change(s) into player_profiles", len(mirrors))
	return nil
}
