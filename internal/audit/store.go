package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store persists security events for the compliance console read side. It
// doubles as a dispatcher sink so locally stored events and collector
// submissions come from the same batch.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a store and migrates its schema.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&StoredEvent{}); err != nil {
		return nil, fmt.Errorf("audit: failed to migrate schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Name implements Sink.
func (s *Store) Name() string { return "store" }

// Write implements Sink.
func (s *Store) Write(ctx context.Context, events []*SecurityEvent) error {
	stored := make([]*StoredEvent, 0, len(events))
	for _, event := range events {
		rec, err := event.ToStored()
		if err != nil {
			s.logger.Warn("skipping unserializable audit event",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		stored = append(stored, rec)
	}
	if len(stored) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&stored).Error; err != nil {
		return fmt.Errorf("audit: failed to persist batch: %w", err)
	}
	return nil
}

// Filters narrows console event queries.
type Filters struct {
	Type     string
	Severity string
	UserID   string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// List returns events matching filters, newest first.
func (s *Store) List(ctx context.Context, filters Filters) ([]StoredEvent, error) {
	query := s.db.WithContext(ctx).Model(&StoredEvent{})
	if filters.Type != "" {
		query = query.Where("type = ?", filters.Type)
	}
	if filters.Severity != "" {
		query = query.Where("severity = ?", filters.Severity)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Since != nil {
		query = query.Where("timestamp >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("timestamp <= ?", *filters.Until)
	}
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var events []StoredEvent
	err := query.Order("timestamp DESC").Limit(limit).Offset(filters.Offset).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list events: %w", err)
	}
	return events, nil
}

// Statistics summarizes the event store for the console dashboard.
type Statistics struct {
	Total          int64            `json:"total"`
	TypeCounts     map[string]int64 `json:"type_counts"`
	SeverityCounts map[string]int64 `json:"severity_counts"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// Stats aggregates counts since the given time.
func (s *Store) Stats(ctx context.Context, since time.Time) (*Statistics, error) {
	stats := &Statistics{
		TypeCounts:     make(map[string]int64),
		SeverityCounts: make(map[string]int64),
		GeneratedAt:    time.Now().UTC(),
	}

	base := s.db.WithContext(ctx).Model(&StoredEvent{}).Where("timestamp >= ?", since)
	if err := base.Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("audit: failed to count events: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byType []bucket
	err := s.db.WithContext(ctx).Model(&StoredEvent{}).
		Select("type AS key, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("type").
		Scan(&byType).Error
	if err != nil {
		return nil, fmt.Errorf("audit: failed to aggregate by type: %w", err)
	}
	for _, b := range byType {
		stats.TypeCounts[b.Key] = b.Count
	}

	var bySeverity []bucket
	err = s.db.WithContext(ctx).Model(&StoredEvent{}).
		Select("severity AS key, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("severity").
		Scan(&bySeverity).Error
	if err != nil {
		return nil, fmt.Errorf("audit: failed to aggregate by severity: %w", err)
	}
	for _, b := range bySeverity {
		stats.SeverityCounts[b.Key] = b.Count
	}

	return stats, nil
}
