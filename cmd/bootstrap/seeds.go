package bootstrap

import (
	"fmt"
	"time"

	"github.com/code-100-precent/EchoDesk/internal/models"
	"gorm.io/gorm"
)

type SeedService struct {
	db *gorm.DB
}

func (s *SeedService) SeedAll() error {
	return s.seedCallLogs()
}

// seedCallLogs writes a small demo history for one lead so a fresh
// environment has something to show. Skipped when any record exists.
func (s *SeedService) seedCallLogs() error {
	var count int64
	if err := s.db.Model(&models.CallLogRecord{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now()
	providerID := "CA0demo000000000000000000000001"
	recordingSID := "RE0demo000000000000000000000001"
	aiURL := "https://media.example.com/demo/ai-call.mp3"

	records := []models.CallLogRecord{
		{
			ID:              "demo-1",
			LeadID:          "demo-lead",
			Direction:       "outbound",
			Status:          "completed",
			Channel:         "voice",
			StartedAt:       now.Add(-48 * time.Hour),
			DurationSeconds: 184,
			ToNumber:        "+14155550123",
			ProviderCallID:  &providerID,
			Provider:        models.ProviderSoftphone,
			RecordingSID:    &recordingSID,
		},
		{
			ID:        "demo-2",
			LeadID:    "demo-lead",
			Direction: "inbound",
			Status:    "missed",
			Channel:   "voice",
			StartedAt: now.Add(-24 * time.Hour),
			FromNumber: "+14155550188",
			Provider:   models.ProviderSoftphone,
		},
		{
			ID:              "demo-3",
			LeadID:          "demo-lead",
			Direction:       "outbound",
			Status:          "completed",
			Channel:         "voice",
			StartedAt:       now.Add(-2 * time.Hour),
			DurationSeconds: 67,
			ToNumber:        "+14155550123",
			Provider:        models.ProviderAIDialer,
			AIRecordingURL:  &aiURL,
		},
	}

	for i := range records {
		if err := s.db.Create(&records[i]).Error; err != nil {
			return fmt.Errorf("seed call log %s: %w", records[i].ID, err)
		}
	}
	return nil
}
