package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

const insufficientEvidenceAnswer = "The indexed papers in this project do not contain enough evidence to answer this question."

type ComposerConfig struct {
	GenerateTimeout time.Duration
	ExcerptRunes    int
}

func (c ComposerConfig) withDefaults() ComposerConfig {
	out := c
	if out.GenerateTimeout <= 0 {
		out.GenerateTimeout = 30 * time.Second
	}
	if out.ExcerptRunes <= 0 {
		out.ExcerptRunes = 240
	}
	return out
}

// Composition is a generated answer plus validated citations.
type Composition struct {
	Text                 string
	Citations            []domain.Citation
	InsufficientEvidence bool
}

// AnswerComposer builds the grounding prompt, invokes generation, and keeps
// only citations that point at chunks it actually supplied.
type AnswerComposer struct {
	generator ports.AnswerGenerator
	logger    *slog.Logger
	cfg       ComposerConfig
}

func NewAnswerComposer(generator ports.AnswerGenerator, logger *slog.Logger, cfg ComposerConfig) *AnswerComposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerComposer{
		generator: generator,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// Compose generates a grounded answer over the supplied evidence. With no
// evidence it returns the fixed insufficient-evidence answer without touching
// the generation capability.
func (c *AnswerComposer) Compose(ctx context.Context, question string, evidence []domain.FusedResult, verdict domain.EvidenceVerdict) (Composition, error) {
	if len(evidence) == 0 {
		return Composition{
			Text:                 insufficientEvidenceAnswer,
			Citations:            []domain.Citation{},
			InsufficientEvidence: true,
		}, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()

	generation, err := c.generator.Generate(genCtx, buildGroundedPrompt(question, evidence))
	if err != nil {
		return Composition{}, domain.WrapError(domain.ErrGenerationUnavailable, "compose answer", err)
	}

	supplied := make(map[string]domain.Chunk, len(evidence))
	for _, item := range evidence {
		supplied[item.Chunk.ID] = item.Chunk
	}

	citations := make([]domain.Citation, 0, len(generation.UsedChunkIDs))
	cited := make(map[string]struct{}, len(generation.UsedChunkIDs))
	for _, id := range generation.UsedChunkIDs {
		chunk, ok := supplied[id]
		if !ok {
			// The generator invented an id; never surface it.
			c.logger.Warn("citation_dropped", "chunk_id", id, "reason", "not_in_supplied_context")
			continue
		}
		if _, dup := cited[id]; dup {
			continue
		}
		cited[id] = struct{}{}
		citations = append(citations, domain.Citation{
			ChunkID:        id,
			Excerpt:        excerpt(chunk.Text, c.cfg.ExcerptRunes),
			RelevanceScore: citationScore(verdict, id),
		})
	}

	return Composition{Text: generation.Text, Citations: citations}, nil
}

// buildGroundedPrompt lists only the supplied chunks, each addressable by id,
// so the generator can report which ones it used.
func buildGroundedPrompt(question string, evidence []domain.FusedResult) string {
	var b strings.Builder
	for _, item := range evidence {
		chunk := item.Chunk
		fmt.Fprintf(&b, "[chunk_id=%s] paper=%q rank=%d\n%s\n\n",
			chunk.ID, chunk.Metadata.Title, item.FusionRank, chunk.Text)
	}

	return fmt.Sprintf(`Answer the question using only the passages below.
Cite every claim by chunk_id. If the passages do not answer the question, say so.
Return strict JSON: {"answer": "...", "used_chunk_ids": ["..."]}.

Question:
%s

Passages:
%s`, question, b.String())
}

func citationScore(verdict domain.EvidenceVerdict, chunkID string) float64 {
	if verdict == nil {
		return 1
	}
	if v, ok := verdict[chunkID]; ok {
		return v.Confidence
	}
	return 1
}

func excerpt(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
