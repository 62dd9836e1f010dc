package repository

import (
	"context"

	"gorm.io/gorm"

	"secretari/internal/model"
)

// UsageEventRepository defines usage journal persistence operations.
type UsageEventRepository interface {
	Create(ctx context.Context, event *model.UsageEvent) error
	CreateBatch(ctx context.Context, events []model.UsageEvent) error
	ListByUsername(ctx context.Context, username string, limit int) ([]model.UsageEvent, error)
}

type usageEventRepository struct {
	db *gorm.DB
}

// NewUsageEventRepository creates a new usage event repository.
func NewUsageEventRepository(db *gorm.DB) UsageEventRepository {
	return &usageEventRepository{db: db}
}

// Create creates a new usage event.
func (r *usageEventRepository) Create(ctx context.Context, event *model.UsageEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// CreateBatch creates multiple usage events in a single transaction.
func (r *usageEventRepository) CreateBatch(ctx context.Context, events []model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// ListByUsername returns the newest events of a user first.
func (r *usageEventRepository) ListByUsername(ctx context.Context, username string, limit int) ([]model.UsageEvent, error) {
	var events []model.UsageEvent
	q := r.db.WithContext(ctx).Where("username = ?", username).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
