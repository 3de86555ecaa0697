package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/viktsys/tweetimpact/models"
)

// Store reads and writes price ticks and events.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SaveTicks inserts ticks in a single transaction.
func (s *Store) SaveTicks(ctx context.Context, ticks []models.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(ticks, len(ticks)).Error
	})
}

// SaveEvents upserts events by id in batches of batchSize. When an id repeats
// the first occurrence is stored; postgres rejects an upsert that touches the
// same row twice in one statement.
func (s *Store) SaveEvents(ctx context.Context, events []models.Event, batchSize int) error {
	events = firstByID(events)
	if len(events) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(events)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(events, batchSize).Error
	})
}

func firstByID(events []models.Event) []models.Event {
	seen := make(map[string]bool, len(events))
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out
}

// LoadTicks returns every tick in (time, insert) order.
func (s *Store) LoadTicks(ctx context.Context) ([]models.PriceTick, error) {
	var ticks []models.PriceTick
	if err := s.db.WithContext(ctx).Order("tick_time, id").Find(&ticks).Error; err != nil {
		return nil, fmt.Errorf("failed to load price ticks: %w", err)
	}
	for i := range ticks {
		ticks[i].Timestamp = ticks[i].Timestamp.UTC()
	}
	return ticks, nil
}

// LoadEvents returns every event, newest first.
func (s *Store) LoadEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.WithContext(ctx).Order("created_at DESC, id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	for i := range events {
		events[i].CreatedAt = events[i].CreatedAt.UTC()
	}
	return events, nil
}

// Counts returns the number of stored ticks and events.
func (s *Store) Counts(ctx context.Context) (ticks, events int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&models.PriceTick{}).Count(&ticks).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count price ticks: %w", err)
	}
	if err = db.Model(&models.Event{}).Count(&events).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count events: %w", err)
	}
	return ticks, events, nil
}
