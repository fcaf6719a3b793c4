package repository

import (
	"context"
	"errors"
	"fmt"

	"follow-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository 关注关系存储
type FollowRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

// FindByStatus 查询指定状态的全部关系
func (r *FollowRepository) FindByStatus(ctx context.Context, status model.FollowStatus) ([]model.Follow, error) {
	var follows []model.Follow
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&follows).Error
	return follows, err
}

// Save 保存关系（不存在则插入）
func (r *FollowRepository) Save(ctx context.Context, follow *model.Follow) error {
	return r.db.WithContext(ctx).Save(follow).Error
}

// DeleteAll 批量删除关系；只删除状态仍与读取时一致的行，返回删除行数
func (r *FollowRepository) DeleteAll(ctx context.Context, follows []model.Follow) (int64, error) {
	if len(follows) == 0 {
		return 0, nil
	}

	byStatus := make(map[model.FollowStatus][]uuid.UUID)
	for i := range follows {
		byStatus[follows[i].Status] = append(byStatus[follows[i].Status], follows[i].ID)
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for status, ids := range byStatus {
			result := tx.Where("id IN ? AND status = ?", ids, status).Delete(&model.Follow{})
			if result.Error != nil {
				return result.Error
			}
			deleted += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetByPair 按 (粉丝, 被关注者) 查询关系
func (r *FollowRepository) GetByPair(ctx context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	var follow model.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		First(&follow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFollowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &follow, nil
}

// CreatePending 用户关注：创建 PENDING 关系。
// 已有 FAILED 关系时替换为新的 PENDING 关系（旧关系的计数从未生效）。
// 唯一键冲突依赖 gorm.Config.TranslateError 翻译为 gorm.ErrDuplicatedKey。
func (r *FollowRepository) CreatePending(ctx context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	follow := model.NewPendingFollow(followerID, followeeID)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockByPair(tx, followerID, followeeID)
		switch {
		case errors.Is(err, ErrFollowNotFound):
		case err != nil:
			return err
		case existing.Status.Active():
			return ErrFollowExists
		case existing.Status == model.StatusCancelled:
			return ErrFollowCancelling
		default:
			if err := tx.Delete(existing).Error; err != nil {
				return err
			}
		}
		return tx.Create(follow).Error
	})
	// 并发关注同一用户时两边都查不到行，后插入的一方撞唯一索引
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrFollowExists
	}
	if err != nil {
		return nil, err
	}
	return follow, nil
}

// Cancel 用户取消关注：PENDING/CONFIRM -> CANCELLED
func (r *FollowRepository) Cancel(ctx context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	var follow *model.Follow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		follow, err = lockByPair(tx, followerID, followeeID)
		if err != nil {
			return err
		}
		next, err := model.NextState(follow.State(), model.TriggerUnfollow, 0)
		if err != nil {
			return err
		}
		follow.Apply(next)
		return updateState(tx, follow)
	})
	if err != nil {
		return nil, err
	}
	return follow, nil
}

// RecordFailure 记录一次计数变更失败，按状态机推进 retry_count / status。
// 关系已被并发修改导致转移不合法时原样返回，不视为错误。
func (r *FollowRepository) RecordFailure(ctx context.Context, id uuid.UUID, trigger model.Trigger, maxRetry int) (*model.Follow, error) {
	var follow *model.Follow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		follow, err = lockByID(tx, id)
		if err != nil {
			return err
		}
		next, err := model.NextState(follow.State(), trigger, maxRetry)
		if errors.Is(err, model.ErrInvalidTransition) {
			return nil
		}
		if err != nil {
			return err
		}
		follow.Apply(next)
		return updateState(tx, follow)
	})
	if err != nil {
		return nil, err
	}
	return follow, nil
}

func lockByID(tx *gorm.DB, id uuid.UUID) (*model.Follow, error) {
	var follow model.Follow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&follow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFollowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock follow %s: %w", id, err)
	}
	return &follow, nil
}

func lockByPair(tx *gorm.DB, followerID, followeeID uuid.UUID) (*model.Follow, error) {
	var follow model.Follow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		First(&follow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFollowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &follow, nil
}

func updateState(tx *gorm.DB, follow *model.Follow) error {
	return tx.Model(follow).Updates(map[string]interface{}{
		"status":      follow.Status,
		"retry_count": follow.RetryCount,
		"counted":     follow.Counted,
	}).Error
}
