package model

import "github.com/google/uuid"

// User 用户模型，这里只维护关注相关计数
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;comment:用户标识" json:"id"`
	UserName      string    `gorm:"size:255;not null;uniqueIndex;comment:用户名" json:"user_name"`
	FollowCount   int64     `gorm:"not null;default:0;comment:关注其他用户个数" json:"follow_count"`
	FollowerCount int64     `gorm:"not null;default:0;comment:粉丝个数" json:"follower_count"`
}

func (User) TableName() string {
	return "users"
}
