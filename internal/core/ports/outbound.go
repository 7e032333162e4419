package ports

import (
	"context"

	"github.com/researchhub/researchhub/internal/core/domain"
)

// Embedder builds the query vector for semantic search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// LexicalSearcher ranks chunks by keyword match (BM25-style).
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, scope domain.SearchScope, topN int) ([]domain.ScoredChunk, error)
}

// VectorSearcher ranks chunks by embedding similarity.
type VectorSearcher interface {
	SearchVector(ctx context.Context, vector []float32, scope domain.SearchScope, topN int) ([]domain.ScoredChunk, error)
}

// ChunkStore reads indexed chunks. Missing ids are dropped, not errors.
type ChunkStore interface {
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

// ProjectStore reads the project context the guardrail judges against.
type ProjectStore interface {
	GetContext(ctx context.Context, projectID string) (domain.ProjectContext, error)
}

// RelevanceJudge classifies one chunk as relevant to a query.
type RelevanceJudge interface {
	Judge(ctx context.Context, query, chunkText string) (domain.ChunkVerdict, error)
}

// QueryRewriter proposes a reformulated query when evidence is weak.
type QueryRewriter interface {
	Rewrite(ctx context.Context, original, current string, offTopic []domain.Chunk, attempt int) (string, error)
}

// GuardrailChecker decides whether a query is in scope for a project.
type GuardrailChecker interface {
	Check(ctx context.Context, query string, project domain.ProjectContext) (domain.GuardrailDecision, error)
}

// AnswerGenerator produces grounded answer text plus the chunk ids it used.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (domain.Generation, error)
}

// AnswerAuditSink publishes answer audit events for offline review.
type AnswerAuditSink interface {
	PublishAnswerRecorded(ctx context.Context, event domain.AnswerEvent) error
}

// AnswerLogStore persists and lists answer audit events.
type AnswerLogStore interface {
	Insert(ctx context.Context, event domain.AnswerEvent) error
	ListRecent(ctx context.Context, limit int) ([]domain.AnswerEvent, error)
}
