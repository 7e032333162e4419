package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/researchhub/researchhub/internal/config"
	"github.com/researchhub/researchhub/internal/core/ports"
	"github.com/researchhub/researchhub/internal/core/usecase"
	"github.com/researchhub/researchhub/internal/infrastructure/llm/ollama"
	"github.com/researchhub/researchhub/internal/infrastructure/queue/nats"
	"github.com/researchhub/researchhub/internal/infrastructure/repository/postgres"
	"github.com/researchhub/researchhub/internal/infrastructure/resilience"
	"github.com/researchhub/researchhub/internal/infrastructure/vector/qdrant"
)

// App holds the wired answer engine shared by the api, worker, and mcp
// binaries. Each binary uses the slice of it that it needs.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Answers   ports.AnswerService
	AnswerLog *postgres.AnswerLogRepository
	Queue     *nats.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	answerLog := postgres.NewAnswerLogRepository(db)
	if err := answerLog.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	projects := postgres.NewProjectRepository(db)

	// One executor process-wide so circuit breaker state is shared across
	// every capability that talks to the same backend.
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	judge := ollama.NewJudge(ollamaClient)
	rewriter := ollama.NewRewriter(ollamaClient)
	scopeChecker := ollama.NewGuardrail(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	scorerTimeout := time.Duration(cfg.ScorerTimeoutSeconds) * time.Second
	judgeTimeout := time.Duration(cfg.JudgeTimeoutSeconds) * time.Second

	guardrail := usecase.NewGuardrail(scopeChecker, projects, logger, judgeTimeout)
	retriever := usecase.NewRetriever(embedder, vectorDB, vectorDB, chunks, logger, usecase.RetrieverConfig{
		TopK:           cfg.RetrievalTopK,
		CandidateLimit: cfg.RetrievalCandidates,
		FusionK:        cfg.FusionRRFK,
		ScorerTimeout:  scorerTimeout,
	})
	grader := usecase.NewEvidenceGrader(judge, logger, usecase.GraderConfig{
		Workers:      cfg.GraderWorkers,
		JudgeTimeout: judgeTimeout,
		JudgesPerSec: float64(cfg.GraderJudgesPerSec),
	})
	reformulator := usecase.NewQueryReformulator(rewriter, logger, judgeTimeout)
	composer := usecase.NewAnswerComposer(generator, logger, usecase.ComposerConfig{})

	flow := usecase.NewAnswerFlow(guardrail, retriever, grader, reformulator, composer, queue, logger, usecase.AnswerConfig{
		MaxRetries:        cfg.AnswerMaxRetries,
		AdequacyThreshold: cfg.AnswerAdequacy,
		TopK:              cfg.RetrievalTopK,
	})

	return &App{
		Config: cfg,
		Logger: logger,

		Answers:   flow,
		AnswerLog: answerLog,
		Queue:     queue,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
