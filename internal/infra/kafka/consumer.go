package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"follow-go/internal/config"
	"follow-go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc 处理一条消息。返回 nil 时副作用必须已经提交；
// 返回 ErrMalformedEvent 表示永久失败，其余错误会触发重投。
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// MessageReader kafka.Reader 中 worker 用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory 创建一个加入消费组的 reader
type ReaderFactory func() MessageReader

const defaultAttempts = 3

// Worker 单个消费槽位：拉取 -> 处理 -> 提交位点。
// 位点只在 handler 成功返回之后提交。handler 失败时先在同一个 reader 上
// 退避重试，次数用尽才关闭 reader 重新入组，由 broker 从上次提交的位点重投；
// 重新入组会触发整个消费组再均衡，所以放在最后。
type Worker struct {
	topic     string
	slot      int
	newReader ReaderFactory
	handler   HandlerFunc
	backoff   time.Duration
	attempts  int
}

func NewWorker(topic string, slot int, newReader ReaderFactory, handler HandlerFunc, backoff time.Duration) *Worker {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Worker{
		topic:     topic,
		slot:      slot,
		newReader: newReader,
		handler:   handler,
		backoff:   backoff,
		attempts:  defaultAttempts,
	}
}

// WithAttempts 设置同一条消息在进程内的处理次数（至少 1 次）
func (w *Worker) WithAttempts(n int) *Worker {
	if n < 1 {
		n = 1
	}
	w.attempts = n
	return w
}

// Run 阻塞直到 ctx 取消
func (w *Worker) Run(ctx context.Context) error {
	log := logger.With(zap.String("topic", w.topic), zap.Int("slot", w.slot))
	log.Info("Kafka consumer worker started")
	defer log.Info("Kafka consumer worker stopped")

	for {
		reader := w.newReader()
		err := w.consume(ctx, reader)
		if cerr := reader.Close(); cerr != nil {
			log.Warn("Failed to close kafka reader", zap.Error(cerr))
		}
		if ctx.Err() != nil {
			return nil
		}

		log.Warn("Kafka consumer worker rejoining group", zap.Error(err), zap.Duration("backoff", w.backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.backoff):
		}
	}
}

func (w *Worker) consume(ctx context.Context, reader MessageReader) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := w.process(ctx, reader, msg); err != nil {
			return err
		}
	}
}

// handle 调用 handler，暂时性失败在本地退避重试
func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := w.handler(ctx, msg)
		if err == nil || errors.Is(err, ErrMalformedEvent) || attempt >= w.attempts {
			return err
		}

		logger.Warn("Kafka message handling failed, retrying",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(w.backoff):
		}
	}
}

func (w *Worker) process(ctx context.Context, reader MessageReader, msg kafka.Message) error {
	err := w.handle(ctx, msg)
	switch {
	case errors.Is(err, ErrMalformedEvent):
		logger.Error("Dropping malformed kafka message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("value", msg.Value),
			zap.Error(err),
		)
	case err != nil:
		return fmt.Errorf("handle message at %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}

	if err := reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}
	return nil
}

// ConsumerGroup 多个 topic、每个 topic 多个 worker
type ConsumerGroup struct {
	workers []*Worker
}

// Subscription topic 与处理函数
type Subscription struct {
	Topic   string
	Handler HandlerFunc
}

// NewConsumerGroup 每个 topic 启动 concurrency 个 reader，同组成员之间分区互斥
func NewConsumerGroup(cfg *config.KafkaConfig, subs ...Subscription) *ConsumerGroup {
	concurrency := cfg.Consumer.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g := &ConsumerGroup{}
	for _, sub := range subs {
		sub := sub
		factory := func() MessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:     cfg.Brokers,
				Topic:       sub.Topic,
				GroupID:     cfg.Consumer.GroupID,
				MinBytes:    1,
				MaxBytes:    10e6,
				StartOffset: kafka.FirstOffset,
				// CommitInterval 为 0：CommitMessages 同步提交
			})
		}
		for slot := 0; slot < concurrency; slot++ {
			w := NewWorker(sub.Topic, slot, factory, sub.Handler, cfg.Consumer.RetryBackoffDuration()).
				WithAttempts(cfg.Consumer.MaxAttempts)
			g.workers = append(g.workers, w)
		}
	}
	return g
}

// NewConsumerGroupFromWorkers 直接由 worker 组装
func NewConsumerGroupFromWorkers(workers ...*Worker) *ConsumerGroup {
	return &ConsumerGroup{workers: workers}
}

// Run 启动全部 worker，阻塞直到 ctx 取消
func (g *ConsumerGroup) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range g.workers {
		w := w
		eg.Go(func() error { return w.Run(ctx) })
	}
	return eg.Wait()
}

// Size worker 总数
func (g *ConsumerGroup) Size() int {
	return len(g.workers)
}
