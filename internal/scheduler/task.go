package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"follow-go/pkg/logger"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning 同一任务上一次执行尚未结束
var ErrAlreadyRunning = errors.New("task already running")

// Job 一次任务执行
type Job func(ctx context.Context) error

// Task 周期任务：按 Schedule 触发，同一时刻最多一个执行
type Task struct {
	name     string
	schedule Schedule
	job      Job
	clock    clock.Clock
	running  atomic.Bool
}

// Option 任务选项
type Option func(*Task)

// WithClock 替换时间源
func WithClock(c clock.Clock) Option {
	return func(t *Task) { t.clock = c }
}

func NewTask(name string, schedule Schedule, job Job, opts ...Option) *Task {
	t := &Task{
		name:     name,
		schedule: schedule,
		job:      job,
		clock:    clock.WallClock,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) Name() string {
	return t.name
}

// RunOnce 立即执行一次；已有执行在进行中时返回 ErrAlreadyRunning
func (t *Task) RunOnce(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer t.running.Store(false)

	start := t.clock.Now()
	err := t.job(ctx)
	elapsed := t.clock.Now().Sub(start)
	if err != nil {
		logger.Error("Scheduled task failed",
			zap.String("task", t.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}
	logger.Debug("Scheduled task finished", zap.String("task", t.name), zap.Duration("elapsed", elapsed))
	return nil
}

// Run 按计划循环执行，阻塞直到 ctx 取消。执行是同步的，本次结束后才计算下一次
func (t *Task) Run(ctx context.Context) {
	logger.Info("Scheduled task started", zap.String("task", t.name), zap.Any("schedule", t.schedule))
	defer logger.Info("Scheduled task stopped", zap.String("task", t.name))

	for {
		now := t.clock.Now()
		wait := t.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(wait):
		}
		if err := t.RunOnce(ctx); errors.Is(err, ErrAlreadyRunning) {
			logger.Warn("Skipping scheduled run, previous run still active", zap.String("task", t.name))
		}
	}
}

// Scheduler 管理一组独立的周期任务
type Scheduler struct {
	tasks []*Task
}

func New(tasks ...*Task) *Scheduler {
	return &Scheduler{tasks: tasks}
}

// Task 按名称查找任务
func (s *Scheduler) Task(name string) (*Task, bool) {
	for _, t := range s.tasks {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// Run 各任务各自计时，阻塞直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	var eg errgroup.Group
	for _, t := range s.tasks {
		t := t
		eg.Go(func() error {
			t.Run(ctx)
			return nil
		})
	}
	return eg.Wait()
}

// NextRuns 每个任务下一次触发时间
func (s *Scheduler) NextRuns(now time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(s.tasks))
	for _, t := range s.tasks {
		out[t.name] = t.schedule.Next(now)
	}
	return out
}
