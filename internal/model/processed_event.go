package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType 异步事件类型，同时也是默认的 topic 名
type EventType string

const (
	EventFollowerIncrease EventType = "follower-increase"
	EventFollowerDecrease EventType = "follower-decrease"
)

// ProcessedEvent 幂等台账：每个已受理的事件 id 只有一行
type ProcessedEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"size:128;not null;uniqueIndex:idx_processed_events_event_id;comment:事件id" json:"event_id"`
	EventType   EventType `gorm:"size:64;not null;comment:事件类型" json:"event_type"`
	ProcessedAt time.Time `gorm:"autoCreateTime;comment:处理时间" json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// FollowEventID 关注计数事件的幂等键：同一关系的同类事件只会生效一次
func FollowEventID(eventType EventType, followID uuid.UUID) string {
	return string(eventType) + ":" + followID.String()
}
