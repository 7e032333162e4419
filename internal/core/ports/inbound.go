package ports

import (
	"context"

	"github.com/researchhub/researchhub/internal/core/domain"
)

// AnswerService is the inbound contract for project-scoped paper QA.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AskRequest) (*domain.CitedAnswer, error)
}

// AnswerLogReader is the inbound read model for the answer audit trail.
type AnswerLogReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AnswerEvent, error)
}
