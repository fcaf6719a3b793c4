package model

import (
	"errors"
	"fmt"
)

// FollowStatus 关注关系生命周期状态
type FollowStatus string

const (
	StatusPending   FollowStatus = "PENDING"
	StatusConfirm   FollowStatus = "CONFIRM"
	StatusCancelled FollowStatus = "CANCELLED"
	StatusFailed    FollowStatus = "FAILED"
)

// Valid 是否为已知状态
func (s FollowStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirm, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Active 用户视角下是否处于关注中
func (s FollowStatus) Active() bool {
	return s == StatusPending || s == StatusConfirm
}

// Trigger 驱动状态转移的事件
type Trigger int

const (
	TriggerIncreaseSucceeded Trigger = iota + 1
	TriggerIncreaseFailed
	TriggerUnfollow
	TriggerDecreaseSucceeded
	TriggerDecreaseFailed
	TriggerCleanup
)

func (t Trigger) String() string {
	switch t {
	case TriggerIncreaseSucceeded:
		return "increase_succeeded"
	case TriggerIncreaseFailed:
		return "increase_failed"
	case TriggerUnfollow:
		return "unfollow"
	case TriggerDecreaseSucceeded:
		return "decrease_succeeded"
	case TriggerDecreaseFailed:
		return "decrease_failed"
	case TriggerCleanup:
		return "cleanup"
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

var ErrInvalidTransition = errors.New("invalid follow state transition")

// FollowState 参与状态转移的字段
type FollowState struct {
	Status     FollowStatus
	RetryCount int
}

// Transition 状态转移结果；Delete 为 true 时关系行应被删除
type Transition struct {
	Status     FollowStatus
	RetryCount int
	Delete     bool
}

// NextState 计算 (当前状态, 触发事件) 的下一个状态。
// retryCount 不会超过 maxRetry；PENDING 下失败次数达到 maxRetry 时进入 FAILED。
func NextState(cur FollowState, trigger Trigger, maxRetry int) (Transition, error) {
	invalid := func() (Transition, error) {
		return Transition{}, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, trigger, cur.Status)
	}

	switch cur.Status {
	case StatusPending:
		switch trigger {
		case TriggerIncreaseSucceeded:
			return Transition{Status: StatusConfirm}, nil
		case TriggerIncreaseFailed:
			retry := cur.RetryCount + 1
			if retry >= maxRetry {
				return Transition{Status: StatusFailed, RetryCount: maxRetry}, nil
			}
			return Transition{Status: StatusPending, RetryCount: retry}, nil
		case TriggerUnfollow:
			return Transition{Status: StatusCancelled, RetryCount: cur.RetryCount}, nil
		}
	case StatusConfirm:
		if trigger == TriggerUnfollow {
			return Transition{Status: StatusCancelled, RetryCount: cur.RetryCount}, nil
		}
	case StatusCancelled:
		switch trigger {
		case TriggerDecreaseSucceeded:
			return Transition{Status: StatusCancelled, RetryCount: cur.RetryCount, Delete: true}, nil
		case TriggerDecreaseFailed:
			// 取消后的减计数没有终态，只能一直重试；次数封顶在 maxRetry
			return Transition{Status: StatusCancelled, RetryCount: min(cur.RetryCount+1, maxRetry)}, nil
		}
	case StatusFailed:
		if trigger == TriggerCleanup {
			return Transition{Status: StatusFailed, RetryCount: cur.RetryCount, Delete: true}, nil
		}
	}
	return invalid()
}
