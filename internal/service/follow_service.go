package service

import (
	"context"
	"errors"
	"time"

	"follow-go/internal/api/dto"
	"follow-go/internal/model"
	"follow-go/internal/repository"
	"follow-go/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCannotFollowSelf   = errors.New("不能关注自己")
	ErrAlreadyFollowed    = errors.New("您已经关注过该用户了")
	ErrNotFollowed        = errors.New("您尚未关注该用户")
	ErrUnfollowInProgress = errors.New("取消关注处理中，请稍后再试")
	ErrUserNotFound       = errors.New("用户不存在")
)

const publishTimeout = 3 * time.Second

// FollowRelations 用户侧对关系表的操作
type FollowRelations interface {
	CreatePending(ctx context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error)
	Cancel(ctx context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error)
	GetByPair(ctx context.Context, followerID, followeeID uuid.UUID) (*model.Follow, error)
}

// UserLookup 用户存在性校验
type UserLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// EventPublisher 关注计数事件发布
type EventPublisher interface {
	PublishIncrease(ctx context.Context, f *model.Follow) error
	PublishDecrease(ctx context.Context, f *model.Follow) error
}

// FollowService 关注/取关入口。关系立即落库为 PENDING/CANCELLED，
// 计数由消费者或对账任务异步完成，失败不会返回给用户。
type FollowService struct {
	follows   FollowRelations
	users     UserLookup
	publisher EventPublisher
}

func NewFollowService(follows FollowRelations, users UserLookup, publisher EventPublisher) *FollowService {
	return &FollowService{
		follows:   follows,
		users:     users,
		publisher: publisher,
	}
}

// Follow 关注用户
func (s *FollowService) Follow(ctx context.Context, followerID, followeeID uuid.UUID) (*dto.FollowResult, error) {
	if followerID == followeeID {
		return nil, ErrCannotFollowSelf
	}

	exists, err := s.users.Exists(ctx, followeeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	follow, err := s.follows.CreatePending(ctx, followerID, followeeID)
	switch {
	case errors.Is(err, repository.ErrFollowExists):
		return nil, ErrAlreadyFollowed
	case errors.Is(err, repository.ErrFollowCancelling):
		return nil, ErrUnfollowInProgress
	case err != nil:
		return nil, err
	}

	s.publish(ctx, model.EventFollowerIncrease, follow)
	return toFollowResult(follow), nil
}

// Unfollow 取消关注
func (s *FollowService) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (*dto.FollowResult, error) {
	follow, err := s.follows.Cancel(ctx, followerID, followeeID)
	switch {
	case errors.Is(err, repository.ErrFollowNotFound), errors.Is(err, model.ErrInvalidTransition):
		return nil, ErrNotFollowed
	case err != nil:
		return nil, err
	}

	s.publish(ctx, model.EventFollowerDecrease, follow)
	return toFollowResult(follow), nil
}

// GetFollowStatus 查询关注状态；PENDING 与 CONFIRM 都算已关注
func (s *FollowService) GetFollowStatus(ctx context.Context, followerID, followeeID uuid.UUID) (*dto.FollowStatusData, error) {
	data := &dto.FollowStatusData{FolloweeID: followeeID}

	follow, err := s.follows.GetByPair(ctx, followerID, followeeID)
	if errors.Is(err, repository.ErrFollowNotFound) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}

	data.IsFollowing = follow.Status.Active()
	data.Status = string(follow.Status)
	return data, nil
}

// publish 发布失败只记日志：对账任务会兜底
func (s *FollowService) publish(ctx context.Context, eventType model.EventType, follow *model.Follow) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	var err error
	if eventType == model.EventFollowerIncrease {
		err = s.publisher.PublishIncrease(ctx, follow)
	} else {
		err = s.publisher.PublishDecrease(ctx, follow)
	}
	if err != nil {
		logger.Warn("Failed to publish follower event, reconciliation will retry",
			zap.String("event_type", string(eventType)),
			logger.UUID("follow_id", follow.ID),
			zap.Error(err),
		)
	}
}

func toFollowResult(f *model.Follow) *dto.FollowResult {
	return &dto.FollowResult{
		FollowID:   f.ID,
		FollowerID: f.FollowerID,
		FolloweeID: f.FolloweeID,
		Status:     string(f.Status),
	}
}
