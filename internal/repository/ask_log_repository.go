package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/samargunners/par-delta-dashboard/internal/model"
)

type AskLogRepository struct {
	db *gorm.DB
}

func NewAskLogRepository(db *gorm.DB) *AskLogRepository {
	return &AskLogRepository{db: db}
}

// Create stores entry; a redelivered entry with the same request id is ignored.
func (r *AskLogRepository) Create(ctx context.Context, entry *model.AskLog) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "request_id"}}, DoNothing: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("create ask log failed: %w", err)
	}
	return nil
}

func (r *AskLogRepository) ListRecent(ctx context.Context, limit int) ([]model.AskLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []model.AskLog
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list ask logs failed: %w", err)
	}
	return logs, nil
}
