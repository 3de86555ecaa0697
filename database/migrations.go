package database

import (
	"fmt"

	"gorm.io/gorm"
)

// OptimizeIndexes creates the indexes used when the application loads the
// full price and event tables at startup.
func OptimizeIndexes(db *gorm.DB) error {
	// Ticks are read in (tick_time, id) order so equal timestamps keep
	// their ingest order.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_price_ticks_time_id
		ON price_ticks (tick_time, id)
	`).Error; err != nil {
		return fmt.Errorf("failed to create price ticks index: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_price_ticks_pct
		ON price_ticks (tick_time)
		WHERE pct_change IS NOT NULL
	`).Error; err != nil {
		return fmt.Errorf("failed to create price ticks pct index: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_created_desc
		ON events (created_at DESC, id)
	`).Error; err != nil {
		return fmt.Errorf("failed to create events index: %w", err)
	}

	return nil
}
