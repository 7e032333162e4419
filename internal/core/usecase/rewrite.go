package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

// QueryReformulator asks the rewrite capability for a new query when graded
// evidence came back weak.
type QueryReformulator struct {
	rewriter ports.QueryRewriter
	logger   *slog.Logger
	timeout  time.Duration
}

func NewQueryReformulator(rewriter ports.QueryRewriter, logger *slog.Logger, timeout time.Duration) *QueryReformulator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &QueryReformulator{
		rewriter: rewriter,
		logger:   logger,
		timeout:  timeout,
	}
}

// Rewrite returns a reformulated query, or "" when the capability failed or
// produced nothing usable. The caller treats "" as convergence and stops
// retrying; rewrite failures never fail the request.
func (q *QueryReformulator) Rewrite(ctx context.Context, original, current string, offTopic []domain.Chunk, attempt int) string {
	rewriteCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	proposal, err := q.rewriter.Rewrite(rewriteCtx, original, current, offTopic, attempt)
	if err != nil {
		q.logger.Warn("rewrite_failed", "attempt", attempt, "error", err)
		return ""
	}
	return strings.TrimSpace(proposal)
}
