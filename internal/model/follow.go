package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Follow 用户关注关系模型
type Follow struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey;comment:关注关系id" json:"id"`
	FollowerID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_unique_follow_pair;index:idx_follows_follower_id;comment:粉丝用户id" json:"follower_id"`
	FolloweeID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_unique_follow_pair;index:idx_follows_followee_id;comment:被关注用户id" json:"followee_id"`
	Status     FollowStatus `gorm:"size:16;not null;default:'PENDING';index:idx_follows_status;comment:关系状态" json:"status"`
	RetryCount int          `gorm:"not null;default:0;comment:计数变更失败次数" json:"retry_count"`
	Counted    bool         `gorm:"not null;default:false;comment:粉丝数是否已加一" json:"counted"`
	CreatedAt  time.Time    `gorm:"autoCreateTime;<-:create;comment:关注时间" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Follow) TableName() string {
	return "follows"
}

// BeforeCreate 生成主键
func (f *Follow) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// State 当前状态快照
func (f *Follow) State() FollowState {
	return FollowState{Status: f.Status, RetryCount: f.RetryCount}
}

// Apply 把状态转移结果写回实体（删除类转移由调用方处理）
func (f *Follow) Apply(t Transition) {
	f.Status = t.Status
	f.RetryCount = t.RetryCount
}

// NewPendingFollow 用户发起关注时创建的初始关系
func NewPendingFollow(followerID, followeeID uuid.UUID) *Follow {
	return &Follow{
		ID:         uuid.New(),
		FollowerID: followerID,
		FolloweeID: followeeID,
		Status:     StatusPending,
	}
}
