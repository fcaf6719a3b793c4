package repository

import (
	"context"

	"follow-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessedEventRepository 幂等台账
type ProcessedEventRepository struct {
	db *gorm.DB
}

func NewProcessedEventRepository(db *gorm.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

// TryMarkProcessed 插入台账行；首次出现返回 true，重复投递返回 false。
// 用 ON CONFLICT DO NOTHING 而不是捕获唯一键错误，调用方的事务不会因冲突被中止。
func (r *ProcessedEventRepository) TryMarkProcessed(ctx context.Context, eventID string, eventType model.EventType) (bool, error) {
	row := &model.ProcessedEvent{
		EventID:   eventID,
		EventType: eventType,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
