package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/researchhub/researchhub/internal/adapters/http"
	"github.com/researchhub/researchhub/internal/bootstrap"
	"github.com/researchhub/researchhub/internal/config"
	"github.com/researchhub/researchhub/internal/observability/logging"
	"github.com/researchhub/researchhub/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(app.Answers, app.AnswerLog, serverMetrics, httpadapter.RouterOptions{
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
	}).Handler()

	mux := http.NewServeMux()
	mux.Handle("/metrics", serverMetrics.Handler())
	mux.Handle("/", router)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
