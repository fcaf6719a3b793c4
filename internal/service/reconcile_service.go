package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"follow-go/internal/config"
	"follow-go/internal/model"
	"follow-go/internal/repository"
	"follow-go/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	StepPendingIncrease   = "pending-increase"
	StepCancelledDecrease = "cancelled-decrease"
	StepFailedCleanup     = "failed-cleanup"
)

const (
	StepStatusFinished = "FINISHED"
	StepStatusFailed   = "FAILED"
)

var (
	ErrUnknownStep = errors.New("unknown reconcile step")
	ErrStepBusy    = errors.New("reconcile step is running elsewhere")
)

// FollowStore 对账用到的关系存储操作
type FollowStore interface {
	FindByStatus(ctx context.Context, status model.FollowStatus) ([]model.Follow, error)
	DeleteAll(ctx context.Context, follows []model.Follow) (int64, error)
	RecordFailure(ctx context.Context, id uuid.UUID, trigger model.Trigger, maxRetry int) (*model.Follow, error)
}

// Locker 跨实例互斥；redis 租约实现
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// StepReport 单次对账结果
type StepReport struct {
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReconcileService 对账：重试卡在 PENDING / CANCELLED 的关系，清理 FAILED 关系。
// 单条失败不会中断整批。
type ReconcileService struct {
	follows  FollowStore
	mutator  CounterMutator
	maxRetry int
	timeout  time.Duration
	lockTTL  time.Duration
	locker   Locker
	metrics  *Metrics
}

func NewReconcileService(follows FollowStore, mutator CounterMutator, cfg *config.ReconcileConfig, metrics *Metrics) *ReconcileService {
	return &ReconcileService{
		follows:  follows,
		mutator:  mutator,
		maxRetry: cfg.MaxRetryCount,
		timeout:  cfg.MutationTimeoutDuration(),
		lockTTL:  cfg.LockTTLDuration(),
		metrics:  metrics,
	}
}

// WithLocker 设置跨实例互斥
func (s *ReconcileService) WithLocker(locker Locker) *ReconcileService {
	s.locker = locker
	return s
}

// Steps 全部步骤名
func (s *ReconcileService) Steps() []string {
	return []string{StepPendingIncrease, StepCancelledDecrease, StepFailedCleanup}
}

// Job 返回给调度器用的执行函数
func (s *ReconcileService) Job(step string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.RunStep(ctx, step)
		if errors.Is(err, ErrStepBusy) {
			logger.Info("Reconcile step skipped, lease held by another instance", zap.String("step", step))
			return nil
		}
		return err
	}
}

// RunStep 按名称执行一个步骤
func (s *ReconcileService) RunStep(ctx context.Context, step string) (*StepReport, error) {
	var run func(context.Context) (*StepReport, error)
	switch step {
	case StepPendingIncrease:
		run = s.RetryPendingIncreases
	case StepCancelledDecrease:
		run = s.RetryCancelledDecreases
	case StepFailedCleanup:
		run = s.CleanupFailed
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step)
	}

	// 租约只用来避免多实例重复扫描；拿锁出错时照常执行，并发安全由行锁保证
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "reconcile:"+step, s.lockTTL)
		switch {
		case err != nil:
			logger.Warn("Reconcile lease unavailable, running step without it",
				zap.String("step", step),
				zap.Error(err),
			)
		case !ok:
			return nil, ErrStepBusy
		default:
			defer release()
		}
	}

	return run(ctx)
}

// RetryPendingIncreases 对 PENDING 关系重试粉丝数 +1；失败累计次数，达到上限进入 FAILED
func (s *ReconcileService) RetryPendingIncreases(ctx context.Context) (*StepReport, error) {
	report := newStepReport(StepPendingIncrease)
	follows, err := s.follows.FindByStatus(ctx, model.StatusPending)
	if err != nil {
		return report.fail(err)
	}
	report.Total = len(follows)

	for i := range follows {
		f := &follows[i]
		result, err := s.applyWithTimeout(ctx, s.mutator.ApplyIncrease, f)
		if err != nil {
			report.Failed++
			s.metrics.reconcileItem(StepPendingIncrease, "failed")
			s.recordIncreaseFailure(ctx, f, err)
			continue
		}
		s.countResult(report, result)
	}

	return report.finish(), nil
}

// RetryCancelledDecreases 对 CANCELLED 关系重试粉丝数 -1 并删除关系；失败累计次数后留待下次
func (s *ReconcileService) RetryCancelledDecreases(ctx context.Context) (*StepReport, error) {
	report := newStepReport(StepCancelledDecrease)
	follows, err := s.follows.FindByStatus(ctx, model.StatusCancelled)
	if err != nil {
		return report.fail(err)
	}
	report.Total = len(follows)

	stuck := 0
	for i := range follows {
		f := &follows[i]
		result, err := s.applyWithTimeout(ctx, s.mutator.ApplyDecrease, f)
		if err != nil {
			report.Failed++
			s.metrics.reconcileItem(StepCancelledDecrease, "failed")
			if s.recordDecreaseFailure(ctx, f, err) {
				stuck++
			}
			continue
		}
		s.countResult(report, result)
	}
	s.metrics.setStuckCancellations(stuck)

	return report.finish(), nil
}

// CleanupFailed 删除 FAILED 关系，不涉及计数
func (s *ReconcileService) CleanupFailed(ctx context.Context) (*StepReport, error) {
	report := newStepReport(StepFailedCleanup)
	follows, err := s.follows.FindByStatus(ctx, model.StatusFailed)
	if err != nil {
		return report.fail(err)
	}
	report.Total = len(follows)
	if len(follows) == 0 {
		return report.finish(), nil
	}

	deleted, err := s.follows.DeleteAll(ctx, follows)
	if err != nil {
		report.Failed = len(follows)
		return report.fail(err)
	}
	report.Succeeded = int(deleted)
	report.Skipped = len(follows) - int(deleted)
	for i := 0; i < report.Succeeded; i++ {
		s.metrics.reconcileItem(StepFailedCleanup, "deleted")
	}

	logger.Info("Failed follow relations cleaned up",
		zap.Int("found", len(follows)),
		zap.Int64("deleted", deleted),
	)
	return report.finish(), nil
}

func (s *ReconcileService) applyWithTimeout(ctx context.Context, apply applyFunc, f *model.Follow) (repository.MutationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return apply(ctx, f.ID, f.FolloweeID, nil)
}

func (s *ReconcileService) countResult(report *StepReport, result repository.MutationResult) {
	if result == repository.MutationApplied {
		report.Succeeded++
	} else {
		report.Skipped++
	}
	s.metrics.reconcileItem(report.Step, string(result))
}

func (s *ReconcileService) recordIncreaseFailure(ctx context.Context, f *model.Follow, cause error) {
	updated, err := s.follows.RecordFailure(ctx, f.ID, model.TriggerIncreaseFailed, s.maxRetry)
	if errors.Is(err, repository.ErrFollowNotFound) {
		logger.Info("Follow relation gone before recording increase failure", logger.UUID("follow_id", f.ID))
		return
	}
	if err != nil {
		logger.Error("Failed to record increase failure",
			logger.UUID("follow_id", f.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}

	if updated.Status == model.StatusFailed {
		s.metrics.relationshipFailed()
		logger.Error("Follow relation failed permanently, follower count will under-count",
			logger.UUID("follow_id", updated.ID),
			logger.UUID("follower_id", updated.FollowerID),
			logger.UUID("followee_id", updated.FolloweeID),
			zap.Int("retry_count", updated.RetryCount),
			zap.Error(cause),
		)
		return
	}
	logger.Warn("Follower increase failed, will retry",
		logger.UUID("follow_id", updated.ID),
		zap.Int("retry_count", updated.RetryCount),
		zap.Error(cause),
	)
}

// recordDecreaseFailure 返回该关系是否已达到重试上限
func (s *ReconcileService) recordDecreaseFailure(ctx context.Context, f *model.Follow, cause error) bool {
	updated, err := s.follows.RecordFailure(ctx, f.ID, model.TriggerDecreaseFailed, s.maxRetry)
	if errors.Is(err, repository.ErrFollowNotFound) {
		logger.Info("Follow relation gone before recording decrease failure", logger.UUID("follow_id", f.ID))
		return false
	}
	if err != nil {
		logger.Error("Failed to record decrease failure",
			logger.UUID("follow_id", f.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return false
	}

	if updated.Status == model.StatusCancelled && updated.RetryCount >= s.maxRetry {
		logger.Error("Cancelled follow relation still failing decrease",
			logger.UUID("follow_id", updated.ID),
			logger.UUID("followee_id", updated.FolloweeID),
			zap.Int("retry_count", updated.RetryCount),
			zap.Error(cause),
		)
		return true
	}
	logger.Warn("Follower decrease failed, will retry",
		logger.UUID("follow_id", updated.ID),
		zap.Int("retry_count", updated.RetryCount),
		zap.Error(cause),
	)
	return false
}

func newStepReport(step string) *StepReport {
	return &StepReport{Step: step, StartedAt: time.Now()}
}

func (r *StepReport) finish() *StepReport {
	r.Status = StepStatusFinished
	r.FinishedAt = time.Now()
	logger.Info("Reconcile step finished",
		zap.String("step", r.Step),
		zap.Int("total", r.Total),
		zap.Int("succeeded", r.Succeeded),
		zap.Int("failed", r.Failed),
		zap.Int("skipped", r.Skipped),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
	)
	return r
}

func (r *StepReport) fail(err error) (*StepReport, error) {
	r.Status = StepStatusFailed
	r.FinishedAt = time.Now()
	return r, fmt.Errorf("reconcile step %s: %w", r.Step, err)
}
