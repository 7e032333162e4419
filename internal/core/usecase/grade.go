package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

type GraderConfig struct {
	Workers      int
	JudgeTimeout time.Duration
	JudgesPerSec float64
}

func (c GraderConfig) withDefaults() GraderConfig {
	out := c
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.JudgeTimeout <= 0 {
		out.JudgeTimeout = 8 * time.Second
	}
	if out.JudgesPerSec <= 0 {
		out.JudgesPerSec = 8
	}
	return out
}

// EvidenceGrader judges each retrieved chunk independently for topical
// relevance. Judgments are advisory; the answer loop aggregates them.
type EvidenceGrader struct {
	judge   ports.RelevanceJudge
	limiter *rate.Limiter
	logger  *slog.Logger
	cfg     GraderConfig
}

func NewEvidenceGrader(judge ports.RelevanceJudge, logger *slog.Logger, cfg GraderConfig) *EvidenceGrader {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &EvidenceGrader{
		judge:   judge,
		limiter: rate.NewLimiter(rate.Limit(cfg.JudgesPerSec), cfg.Workers),
		logger:  logger,
		cfg:     cfg,
	}
}

// Grade runs judgments with bounded parallelism. A failed judgment defaults
// to relevant with zero confidence so transient judge errors never discard
// evidence. The aggregate is order-independent.
func (g *EvidenceGrader) Grade(ctx context.Context, query string, evidence []domain.FusedResult) domain.EvidenceVerdict {
	verdict := make(domain.EvidenceVerdict, len(evidence))
	if len(evidence) == 0 {
		return verdict
	}

	jobs := make(chan domain.FusedResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := g.cfg.Workers
	if workers > len(evidence) {
		workers = len(evidence)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				result := g.judgeOne(ctx, query, item.Chunk)
				mu.Lock()
				verdict[item.Chunk.ID] = result
				mu.Unlock()
			}
		}()
	}

	for _, item := range evidence {
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	return verdict
}

func (g *EvidenceGrader) judgeOne(ctx context.Context, query string, chunk domain.Chunk) domain.ChunkVerdict {
	if err := g.limiter.Wait(ctx); err != nil {
		return failOpenVerdict()
	}

	judgeCtx, cancel := context.WithTimeout(ctx, g.cfg.JudgeTimeout)
	defer cancel()

	result, err := g.judge.Judge(judgeCtx, query, chunk.Text)
	if err != nil {
		g.logger.Warn("judge_failed", "chunk_id", chunk.ID, "error", err)
		return failOpenVerdict()
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result
}

func failOpenVerdict() domain.ChunkVerdict {
	return domain.ChunkVerdict{Relevant: true, Confidence: 0}
}
