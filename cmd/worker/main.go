package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"follow-go/internal/config"
	"follow-go/internal/infra/database"
	infraKafka "follow-go/internal/infra/kafka"
	infraRedis "follow-go/internal/infra/redis"
	"follow-go/internal/model"
	"follow-go/internal/repository"
	"follow-go/internal/scheduler"
	"follow-go/internal/service"
	"follow-go/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.FilePath); err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("Failed to init database", zap.Error(err))
	}
	defer database.Close()

	if err := database.AutoMigrate(&model.User{}, &model.Follow{}, &model.ProcessedEvent{}); err != nil {
		logger.Fatal("Failed to auto migrate", zap.Error(err))
	}

	if err := infraRedis.Init(&cfg.Redis); err != nil {
		logger.Fatal("Failed to init redis", zap.Error(err))
	}
	defer infraRedis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	metrics := service.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics, collectors.NewGoCollector())

	db := database.Get()
	followRepo := repository.NewFollowRepository(db)
	counterRepo := repository.NewCounterRepository(db)

	// 消费者
	eventHandler := service.NewFollowEventHandler(counterRepo, cfg.Reconcile.MutationTimeoutDuration(), metrics)
	increaseTopic := cfg.Kafka.Topic("follower_increase", string(model.EventFollowerIncrease))
	decreaseTopic := cfg.Kafka.Topic("follower_decrease", string(model.EventFollowerDecrease))
	consumers := infraKafka.NewConsumerGroup(&cfg.Kafka,
		infraKafka.Subscription{Topic: increaseTopic, Handler: eventHandler.HandleIncrease},
		infraKafka.Subscription{Topic: decreaseTopic, Handler: eventHandler.HandleDecrease},
	)

	// 对账任务
	reconcileService := service.NewReconcileService(followRepo, counterRepo, &cfg.Reconcile, metrics).
		WithLocker(infraRedis.NewLease(infraRedis.Get()))

	cleanupAt, err := scheduler.ParseDailyAt(cfg.Reconcile.CleanupAt, time.Local)
	if err != nil {
		logger.Fatal("Invalid cleanup schedule", zap.Error(err))
	}
	sched := scheduler.New(
		scheduler.NewTask(service.StepPendingIncrease,
			scheduler.Every(cfg.Reconcile.PendingIntervalDuration()),
			reconcileService.Job(service.StepPendingIncrease)),
		scheduler.NewTask(service.StepCancelledDecrease,
			scheduler.Every(cfg.Reconcile.CancelledIntervalDuration()),
			reconcileService.Job(service.StepCancelledDecrease)),
		scheduler.NewTask(service.StepFailedCleanup,
			cleanupAt,
			reconcileService.Job(service.StepFailedCleanup)),
	)

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.MetricsPort),
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	logger.Info("Follow worker started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("group", cfg.Kafka.Consumer.GroupID),
		zap.Strings("topics", []string{increaseTopic, decreaseTopic}),
		zap.Int("consumers", consumers.Size()),
		zap.String("metrics_addr", metricsSrv.Addr),
	)
	for name, next := range sched.NextRuns(time.Now()) {
		logger.Info("Reconcile task scheduled", zap.String("task", name), zap.Time("next_run", next))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return consumers.Run(ctx) })
	eg.Go(func() error { return sched.Run(ctx) })
	eg.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Follow worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("Follow worker stopped")
}
