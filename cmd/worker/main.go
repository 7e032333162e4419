package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/researchhub/researchhub/internal/bootstrap"
	"github.com/researchhub/researchhub/internal/config"
	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/observability/logging"
	"github.com/researchhub/researchhub/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeAnswerRecorded(ctx, func(handlerCtx context.Context, event domain.AnswerEvent) error {
		workerMetrics.StartEvent()
		workerMetrics.ObserveQueueLag("worker", time.Since(event.CreatedAt))

		start := time.Now()
		insertCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		insertErr := app.AnswerLog.Insert(insertCtx, event)
		workerMetrics.FinishEvent("worker", time.Since(start), insertErr)
		return insertErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
