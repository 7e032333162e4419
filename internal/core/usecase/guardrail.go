package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

// Guardrail decides, before any retrieval cost is spent, whether a question
// belongs to the project's research scope.
type Guardrail struct {
	checker  ports.GuardrailChecker
	projects ports.ProjectStore
	logger   *slog.Logger
	timeout  time.Duration
}

func NewGuardrail(checker ports.GuardrailChecker, projects ports.ProjectStore, logger *slog.Logger, timeout time.Duration) *Guardrail {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &Guardrail{
		checker:  checker,
		projects: projects,
		logger:   logger,
		timeout:  timeout,
	}
}

// Check loads the project context and runs the scope classifier. A classifier
// failure fails open to in-scope: an LLM outage should degrade answer quality,
// not reject every question. An unknown project is a caller error and
// propagates.
func (g *Guardrail) Check(ctx context.Context, projectID, query string) (domain.GuardrailDecision, error) {
	project, err := g.projects.GetContext(ctx, projectID)
	if err != nil {
		return domain.GuardrailDecision{}, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	decision, err := g.checker.Check(checkCtx, query, project)
	if err != nil {
		g.logger.Warn("guardrail_check_failed", "project_id", projectID, "error", err)
		return domain.GuardrailDecision{InScope: true}, nil
	}
	return decision, nil
}
