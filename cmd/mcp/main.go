package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/researchhub/researchhub/internal/adapters/mcp"
	"github.com/researchhub/researchhub/internal/bootstrap"
	"github.com/researchhub/researchhub/internal/config"
	"github.com/researchhub/researchhub/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	// Stdout carries the MCP wire protocol; everything else goes to stderr.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.Answers, logger, version)
	if err := server.ServeStdio(); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
