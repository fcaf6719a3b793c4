package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"follow-go/internal/config"
	"follow-go/internal/model"
	"follow-go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。按 key 哈希分区，同一关系的增减事件有序
func InitProducer(cfg *config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("kafka brokers not configured")
	}

	producer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
	)

	return nil
}

// SendRaw 发送原始消息到指定 topic
func SendRaw(ctx context.Context, topic, key string, value []byte) error {
	if producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send kafka message: %w", err)
	}
	return nil
}

// CloseProducer 关闭生产者
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	logger.Info("Kafka producer closed")
	return producer.Close()
}

// SendFunc 发送函数，默认为 SendRaw
type SendFunc func(ctx context.Context, topic, key string, value []byte) error

// FollowEventPublisher 发布关注计数事件
type FollowEventPublisher struct {
	increaseTopic string
	decreaseTopic string
	send          SendFunc
}

func NewFollowEventPublisher(cfg *config.KafkaConfig) *FollowEventPublisher {
	return &FollowEventPublisher{
		increaseTopic: cfg.Topic("follower_increase", string(model.EventFollowerIncrease)),
		decreaseTopic: cfg.Topic("follower_decrease", string(model.EventFollowerDecrease)),
		send:          SendRaw,
	}
}

// WithSender 替换底层发送函数
func (p *FollowEventPublisher) WithSender(send SendFunc) *FollowEventPublisher {
	p.send = send
	return p
}

// PublishIncrease 关注创建后发布 follower-increase
func (p *FollowEventPublisher) PublishIncrease(ctx context.Context, f *model.Follow) error {
	return p.publish(ctx, p.increaseTopic, f)
}

// PublishDecrease 取消关注后发布 follower-decrease
func (p *FollowEventPublisher) PublishDecrease(ctx context.Context, f *model.Follow) error {
	return p.publish(ctx, p.decreaseTopic, f)
}

func (p *FollowEventPublisher) publish(ctx context.Context, topic string, f *model.Follow) error {
	payload, err := json.Marshal(NewFollowerEvent(f))
	if err != nil {
		return fmt.Errorf("failed to marshal follower event: %w", err)
	}
	if err := p.send(ctx, topic, f.ID.String(), payload); err != nil {
		return err
	}

	logger.Debug("Follower event sent",
		zap.String("topic", topic),
		zap.Stringer("follow_id", f.ID),
		zap.Stringer("followee_id", f.FolloweeID),
	)
	return nil
}
