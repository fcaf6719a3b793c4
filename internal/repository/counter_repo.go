package repository

import (
	"context"
	"errors"
	"fmt"

	"follow-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MutationResult 一次计数变更的结果
type MutationResult string

const (
	MutationApplied   MutationResult = "applied"
	MutationSkipped   MutationResult = "skipped"   // 关系不存在或状态已变，无需处理
	MutationDuplicate MutationResult = "duplicate" // 幂等台账命中
)

// CounterRepository 粉丝计数变更。
// 每次调用是一个事务：锁关系行 -> 校验状态 -> 改计数 -> 改状态/删行，
// 计数和状态不会出现只改了一半的情况。
type CounterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// ApplyIncrease 粉丝数 +1 并把关系置为 CONFIRM。
// mark 非空时先写幂等台账，与计数变更同一事务。
func (r *CounterRepository) ApplyIncrease(ctx context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (MutationResult, error) {
	return r.mutate(ctx, followID, followeeID, mark, func(tx *gorm.DB, follow *model.Follow) (MutationResult, error) {
		next, err := model.NextState(follow.State(), model.TriggerIncreaseSucceeded, 0)
		if errors.Is(err, model.ErrInvalidTransition) {
			return MutationSkipped, nil
		}
		if err != nil {
			return "", err
		}

		if err := NewUserRepository(tx).AdjustFollowCounters(follow.FollowerID, follow.FolloweeID, 1); err != nil {
			return "", err
		}

		follow.Apply(next)
		follow.Counted = true
		if err := updateState(tx, follow); err != nil {
			return "", err
		}
		return MutationApplied, nil
	})
}

// ApplyDecrease 粉丝数 -1 并删除 CANCELLED 关系。
// 计数从未加过（counted=false）的关系只删行不减计数。
func (r *CounterRepository) ApplyDecrease(ctx context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (MutationResult, error) {
	return r.mutate(ctx, followID, followeeID, mark, func(tx *gorm.DB, follow *model.Follow) (MutationResult, error) {
		next, err := model.NextState(follow.State(), model.TriggerDecreaseSucceeded, 0)
		if errors.Is(err, model.ErrInvalidTransition) {
			return MutationSkipped, nil
		}
		if err != nil {
			return "", err
		}

		if follow.Counted {
			if err := NewUserRepository(tx).AdjustFollowCounters(follow.FollowerID, follow.FolloweeID, -1); err != nil {
				return "", err
			}
		}

		if next.Delete {
			if err := tx.Delete(follow).Error; err != nil {
				return "", err
			}
		}
		return MutationApplied, nil
	})
}

func (r *CounterRepository) mutate(
	ctx context.Context,
	followID, followeeID uuid.UUID,
	mark *model.ProcessedEvent,
	apply func(tx *gorm.DB, follow *model.Follow) (MutationResult, error),
) (MutationResult, error) {
	var result MutationResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mark != nil {
			first, err := NewProcessedEventRepository(tx).TryMarkProcessed(ctx, mark.EventID, mark.EventType)
			if err != nil {
				return fmt.Errorf("mark event %s processed: %w", mark.EventID, err)
			}
			if !first {
				result = MutationDuplicate
				return nil
			}
		}

		follow, err := lockByID(tx, followID)
		if errors.Is(err, ErrFollowNotFound) {
			result = MutationSkipped
			return nil
		}
		if err != nil {
			return err
		}
		if follow.FolloweeID != followeeID {
			return fmt.Errorf("%w: follow %s has followee %s, got %s",
				ErrFolloweeMismatch, followID, follow.FolloweeID, followeeID)
		}

		result, err = apply(tx, follow)
		return err
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
