package dto

import "github.com/google/uuid"

// FollowResult 关注/取关操作结果；计数异步更新，这里只返回关系状态
type FollowResult struct {
	FollowID   uuid.UUID `json:"follow_id"`
	FollowerID uuid.UUID `json:"follower_id"`
	FolloweeID uuid.UUID `json:"followee_id"`
	Status     string    `json:"status"`
}

// FollowStatusData 关注状态
type FollowStatusData struct {
	FolloweeID  uuid.UUID `json:"followee_id"`
	IsFollowing bool      `json:"is_following"`
	Status      string    `json:"status,omitempty"`
}
