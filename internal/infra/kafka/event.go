package kafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"follow-go/internal/model"

	"github.com/google/uuid"
)

// ErrMalformedEvent 消息无法解析或缺少必填字段，重投也不会成功
var ErrMalformedEvent = errors.New("malformed follower event")

// FollowerEvent follower-increase / follower-decrease 消息体
type FollowerEvent struct {
	FollowID   uuid.UUID `json:"followId"`
	FolloweeID uuid.UUID `json:"followeeId"`
}

// NewFollowerEvent 由关注关系构造事件
func NewFollowerEvent(f *model.Follow) *FollowerEvent {
	return &FollowerEvent{FollowID: f.ID, FolloweeID: f.FolloweeID}
}

// DecodeFollowerEvent 解析并校验消息体
func DecodeFollowerEvent(value []byte) (*FollowerEvent, error) {
	var evt FollowerEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.FollowID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing followId", ErrMalformedEvent)
	}
	if evt.FolloweeID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing followeeId", ErrMalformedEvent)
	}
	return &evt, nil
}
