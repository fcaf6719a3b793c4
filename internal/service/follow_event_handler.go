package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	infraKafka "follow-go/internal/infra/kafka"
	"follow-go/internal/model"
	"follow-go/internal/repository"
	"follow-go/pkg/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CounterMutator 计数变更：每次调用在一个事务内完成计数和关系状态的修改。
// mark 非空时在同一事务内写幂等台账，重复事件返回 MutationDuplicate。
type CounterMutator interface {
	ApplyIncrease(ctx context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (repository.MutationResult, error)
	ApplyDecrease(ctx context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (repository.MutationResult, error)
}

type applyFunc func(ctx context.Context, followID, followeeID uuid.UUID, mark *model.ProcessedEvent) (repository.MutationResult, error)

// FollowEventHandler 消费 follower-increase / follower-decrease 事件
type FollowEventHandler struct {
	mutator CounterMutator
	timeout time.Duration
	metrics *Metrics
}

func NewFollowEventHandler(mutator CounterMutator, timeout time.Duration, metrics *Metrics) *FollowEventHandler {
	return &FollowEventHandler{
		mutator: mutator,
		timeout: timeout,
		metrics: metrics,
	}
}

// HandleIncrease follower-increase 处理函数
func (h *FollowEventHandler) HandleIncrease(ctx context.Context, msg kafka.Message) error {
	return h.handle(ctx, msg, model.EventFollowerIncrease, h.mutator.ApplyIncrease)
}

// HandleDecrease follower-decrease 处理函数
func (h *FollowEventHandler) HandleDecrease(ctx context.Context, msg kafka.Message) error {
	return h.handle(ctx, msg, model.EventFollowerDecrease, h.mutator.ApplyDecrease)
}

func (h *FollowEventHandler) handle(ctx context.Context, msg kafka.Message, eventType model.EventType, apply applyFunc) error {
	evt, err := infraKafka.DecodeFollowerEvent(msg.Value)
	if err != nil {
		h.metrics.eventConsumed(string(eventType), "malformed")
		return err
	}

	mark := &model.ProcessedEvent{
		EventID:   model.FollowEventID(eventType, evt.FollowID),
		EventType: eventType,
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := apply(ctx, evt.FollowID, evt.FolloweeID, mark)
	if errors.Is(err, repository.ErrFolloweeMismatch) {
		h.metrics.eventConsumed(string(eventType), "malformed")
		return fmt.Errorf("%w: %v", infraKafka.ErrMalformedEvent, err)
	}
	if err != nil {
		h.metrics.eventConsumed(string(eventType), "failed")
		return fmt.Errorf("apply %s for follow %s: %w", eventType, evt.FollowID, err)
	}

	h.metrics.eventConsumed(string(eventType), string(result))
	logger.Info("Follower event handled",
		zap.String("event_type", string(eventType)),
		logger.UUID("follow_id", evt.FollowID),
		logger.UUID("followee_id", evt.FolloweeID),
		zap.String("result", string(result)),
	)
	return nil
}
