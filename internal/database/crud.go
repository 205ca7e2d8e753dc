package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SaveRun persists one served request. The response is stored as raw JSON so
// history replays exactly what the client saw.
func SaveRun(ctx context.Context, db *gorm.DB, mode, baselineText string, variantText *string, response any) (*Run, error) {
	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("could not marshal response for history: %w", err)
	}

	run := Run{
		CreatedAt:    time.Now().UTC(),
		Mode:         mode,
		BaselineText: baselineText,
		VariantText:  variantText,
		Response:     payload,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("could not save run: %w", err)
	}
	return &run, nil
}

// FetchHistory returns the most recent runs, newest first.
func FetchHistory(ctx context.Context, db *gorm.DB, limit int) ([]Run, error) {
	var runs []Run
	if err := db.WithContext(ctx).Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("could not query run history: %w", err)
	}
	return runs, nil
}
