package repository

import (
	"bytes"
	"context"
	"fmt"

	"follow-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Exists 检查用户是否存在
func (r *UserRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

type userCounter struct {
	id     uuid.UUID
	column string
}

// followCounters 一条关注关系涉及的两个计数，按用户 id 升序排列
func followCounters(followerID, followeeID uuid.UUID) [2]userCounter {
	counters := [2]userCounter{
		{id: followerID, column: "follow_count"},
		{id: followeeID, column: "follower_count"},
	}
	if bytes.Compare(followeeID[:], followerID[:]) < 0 {
		counters[0], counters[1] = counters[1], counters[0]
	}
	return counters
}

// AdjustFollowCounters 粉丝的关注数、被关注者的粉丝数同时加减 delta。
// 两行按 id 升序更新：A 关注 B 与 B 关注 A 并发时加锁顺序一致，不会互相等待。
func (r *UserRepository) AdjustFollowCounters(followerID, followeeID uuid.UUID, delta int) error {
	for _, c := range followCounters(followerID, followeeID) {
		if err := r.adjust(c.id, c.column, delta); err != nil {
			return fmt.Errorf("adjust %s of %s: %w", c.column, c.id, err)
		}
	}
	return nil
}

// adjust 减计数时不低于 0
func (r *UserRepository) adjust(id uuid.UUID, column string, delta int) error {
	query := r.db.Model(&model.User{}).Where("id = ?", id)
	if delta < 0 {
		query = query.Where(column + " > 0")
	}
	result := query.UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	// 减计数时 0 行可能只是计数已为 0
	if result.RowsAffected == 0 && delta > 0 {
		return ErrUserNotFound
	}
	return nil
}
