package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"follow-go/internal/config"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker 单分区：reader 从已提交位点开始读
type fakeBroker struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed int
	readers   int
	closed    int
}

func newFakeBroker(values ...string) *fakeBroker {
	b := &fakeBroker{}
	for i, v := range values {
		b.messages = append(b.messages, kafka.Message{Topic: "t", Offset: int64(i), Value: []byte(v)})
	}
	return b
}

func (b *fakeBroker) newReader() MessageReader {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readers++
	return &fakeReader{broker: b, pos: b.committed}
}

func (b *fakeBroker) snapshot() (committed, readers, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed, b.readers, b.closed
}

type fakeReader struct {
	broker *fakeBroker
	pos    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.broker.mu.Lock()
	if r.pos < len(r.broker.messages) {
		msg := r.broker.messages[r.pos]
		r.pos++
		r.broker.mu.Unlock()
		return msg, nil
	}
	r.broker.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.broker.mu.Lock()
	defer r.broker.mu.Unlock()
	for _, m := range msgs {
		if int(m.Offset)+1 > r.broker.committed {
			r.broker.committed = int(m.Offset) + 1
		}
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.broker.mu.Lock()
	defer r.broker.mu.Unlock()
	r.broker.closed++
	return nil
}

func runWorker(t *testing.T, w *Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestWorkerCommitsAfterSuccessfulHandle(t *testing.T) {
	broker := newFakeBroker("a", "b")
	var mu sync.Mutex
	var committedAtHandle []int

	handler := func(_ context.Context, msg kafka.Message) error {
		committed, _, _ := broker.snapshot()
		mu.Lock()
		committedAtHandle = append(committedAtHandle, committed)
		mu.Unlock()
		return nil
	}

	stop := runWorker(t, NewWorker("t", 0, broker.newReader, handler, time.Millisecond))
	require.Eventually(t, func() bool {
		committed, _, _ := broker.snapshot()
		return committed == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	// 处理第 n 条时位点还停在 n，说明提交发生在处理之后
	assert.Equal(t, []int{0, 1}, committedAtHandle)
}

func TestWorkerDropsMalformedMessage(t *testing.T) {
	broker := newFakeBroker("{not json")
	calls := 0
	handler := func(_ context.Context, msg kafka.Message) error {
		calls++
		_, err := DecodeFollowerEvent(msg.Value)
		return err
	}

	stop := runWorker(t, NewWorker("t", 0, broker.newReader, handler, time.Millisecond))
	require.Eventually(t, func() bool {
		committed, _, _ := broker.snapshot()
		return committed == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	_, readers, _ := broker.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, readers)
}

func TestWorkerRedeliversAfterHandlerFailure(t *testing.T) {
	broker := newFakeBroker("x", "y")
	var mu sync.Mutex
	seen := map[string]int{}
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[string(msg.Value)]++
		if string(msg.Value) == "x" && seen["x"] == 1 {
			return errors.New("database unavailable")
		}
		return nil
	}

	stop := runWorker(t, NewWorker("t", 0, broker.newReader, handler, time.Millisecond).WithAttempts(1))
	require.Eventually(t, func() bool {
		committed, _, _ := broker.snapshot()
		return committed == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	committed, readers, closed := broker.snapshot()
	assert.Equal(t, 2, committed)
	assert.Equal(t, 2, readers, "failed handle should rejoin with a new reader")
	assert.Equal(t, readers, closed)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, seen["x"])
	assert.Equal(t, 1, seen["y"])
}

func TestWorkerRetriesInProcessBeforeRejoining(t *testing.T) {
	broker := newFakeBroker("x")
	var mu sync.Mutex
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("deadlock detected")
		}
		return nil
	}

	stop := runWorker(t, NewWorker("t", 0, broker.newReader, handler, time.Millisecond))
	require.Eventually(t, func() bool {
		committed, _, _ := broker.snapshot()
		return committed == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	_, readers, _ := broker.snapshot()
	assert.Equal(t, 1, readers, "transient failures within the attempt budget keep the reader")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestWorkerRejoinsAfterAttemptsExhausted(t *testing.T) {
	broker := newFakeBroker("x")
	var mu sync.Mutex
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return errors.New("user not found")
		}
		return nil
	}

	stop := runWorker(t, NewWorker("t", 0, broker.newReader, handler, time.Millisecond).WithAttempts(2))
	require.Eventually(t, func() bool {
		committed, _, _ := broker.snapshot()
		return committed == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	_, readers, _ := broker.snapshot()
	assert.Equal(t, 2, readers)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestNewConsumerGroupSizing(t *testing.T) {
	cfg := &config.KafkaConfig{
		Brokers:  []string{"127.0.0.1:9092"},
		Consumer: config.ConsumerConfig{GroupID: "g", Concurrency: 3},
	}
	noop := func(context.Context, kafka.Message) error { return nil }

	g := NewConsumerGroup(cfg,
		Subscription{Topic: "follower-increase", Handler: noop},
		Subscription{Topic: "follower-decrease", Handler: noop},
	)
	assert.Equal(t, 6, g.Size())
	for _, w := range g.workers {
		assert.Equal(t, 1, w.attempts, "unset max_attempts falls back to a single attempt")
	}

	cfg.Consumer.Concurrency = 0
	assert.Equal(t, 1, NewConsumerGroup(cfg, Subscription{Topic: "a", Handler: noop}).Size())
}

func TestConsumerGroupRunStopsOnCancel(t *testing.T) {
	b1 := newFakeBroker("1")
	b2 := newFakeBroker("2")
	noop := func(context.Context, kafka.Message) error { return nil }
	g := NewConsumerGroupFromWorkers(
		NewWorker("a", 0, b1.newReader, noop, time.Millisecond),
		NewWorker("b", 0, b2.newReader, noop, time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool {
		c1, _, _ := b1.snapshot()
		c2, _, _ := b2.snapshot()
		return c1 == 1 && c2 == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
