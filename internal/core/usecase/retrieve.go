package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

type RetrieverConfig struct {
	TopK           int
	CandidateLimit int
	FusionK        int
	EmbedTimeout   time.Duration
	ScorerTimeout  time.Duration
	FetchTimeout   time.Duration
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	out := c
	if out.TopK <= 0 {
		out.TopK = 5
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = 30
	}
	if out.FusionK <= 0 {
		out.FusionK = defaultRRFK
	}
	if out.EmbedTimeout <= 0 {
		out.EmbedTimeout = 4 * time.Second
	}
	if out.ScorerTimeout <= 0 {
		out.ScorerTimeout = 4 * time.Second
	}
	if out.FetchTimeout <= 0 {
		out.FetchTimeout = 4 * time.Second
	}
	return out
}

// RetrievalRound is the outcome of one hybrid retrieval pass. Partial marks
// rounds where one of the two indexes failed and the other carried on.
type RetrievalRound struct {
	Results []domain.FusedResult
	Partial bool
}

// Retriever embeds the query, runs both indexes concurrently, applies the
// scope filters ahead of fusion, and fuses the survivors.
type Retriever struct {
	embedder ports.Embedder
	lexical  ports.LexicalSearcher
	vector   ports.VectorSearcher
	chunks   ports.ChunkStore
	logger   *slog.Logger
	cfg      RetrieverConfig
}

func NewRetriever(
	embedder ports.Embedder,
	lexical ports.LexicalSearcher,
	vector ports.VectorSearcher,
	chunks ports.ChunkStore,
	logger *slog.Logger,
	cfg RetrieverConfig,
) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		lexical:  lexical,
		vector:   vector,
		chunks:   chunks,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

type scorerOutcome struct {
	source domain.RetrievalSource
	hits   []domain.ScoredChunk
	err    error
}

func (r *Retriever) Retrieve(ctx context.Context, query string, scope domain.SearchScope, topK int) (RetrievalRound, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	vector, err := r.embedder.EmbedQuery(embedCtx, query)
	cancelEmbed()
	if err != nil {
		return RetrievalRound{}, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed query", err)
	}

	outcomes := make(chan scorerOutcome, 2)
	go func() {
		scorerCtx, cancel := context.WithTimeout(ctx, r.cfg.ScorerTimeout)
		defer cancel()
		hits, err := r.lexical.SearchLexical(scorerCtx, query, scope, r.cfg.CandidateLimit)
		outcomes <- scorerOutcome{source: domain.SourceLexical, hits: hits, err: err}
	}()
	go func() {
		scorerCtx, cancel := context.WithTimeout(ctx, r.cfg.ScorerTimeout)
		defer cancel()
		hits, err := r.vector.SearchVector(scorerCtx, vector, scope, r.cfg.CandidateLimit)
		outcomes <- scorerOutcome{source: domain.SourceVector, hits: hits, err: err}
	}()

	var lexicalHits, vectorHits []domain.ScoredChunk
	failures := 0
	for i := 0; i < 2; i++ {
		outcome := <-outcomes
		if outcome.err != nil {
			failures++
			r.logger.Warn("scorer_failed",
				"source", string(outcome.source),
				"error", outcome.err,
			)
			continue
		}
		if outcome.source == domain.SourceLexical {
			lexicalHits = outcome.hits
		} else {
			vectorHits = outcome.hits
		}
	}
	if failures == 2 {
		return RetrievalRound{}, domain.WrapError(domain.ErrRetrievalUnavailable, "hybrid search", domain.ErrScorerUnavailable)
	}
	partial := failures == 1

	lexicalHits = dedupeHits(lexicalHits)
	vectorHits = dedupeHits(vectorHits)

	byID, err := r.hydrate(ctx, lexicalHits, vectorHits)
	if err != nil {
		return RetrievalRound{}, domain.WrapError(domain.ErrRetrievalUnavailable, "fetch chunks", err)
	}

	lexicalHits = filterAdmitted(lexicalHits, byID, scope)
	vectorHits = filterAdmitted(vectorHits, byID, scope)

	placements := fuseReciprocalRank(lexicalHits, vectorHits, r.cfg.FusionK)
	if len(placements) > topK {
		placements = placements[:topK]
	}

	results := make([]domain.FusedResult, 0, len(placements))
	for _, p := range placements {
		results = append(results, domain.FusedResult{
			Chunk:       byID[p.ChunkID],
			FusionRank:  p.Rank,
			FusionScore: p.Score,
		})
	}
	return RetrievalRound{Results: results, Partial: partial}, nil
}

// hydrate fetches chunk rows for every distinct hit. Ids missing from the
// store are dropped silently, matching the store contract.
func (r *Retriever) hydrate(ctx context.Context, lists ...[]domain.ScoredChunk) (map[string]domain.Chunk, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 32)
	for _, list := range lists {
		for _, hit := range list {
			if _, ok := seen[hit.ChunkID]; ok {
				continue
			}
			seen[hit.ChunkID] = struct{}{}
			ids = append(ids, hit.ChunkID)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.Chunk{}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	chunks, err := r.chunks.FetchByIDs(fetchCtx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return byID, nil
}

func dedupeHits(hits []domain.ScoredChunk) []domain.ScoredChunk {
	if len(hits) == 0 {
		return hits
	}
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, hit := range hits {
		if _, dup := seen[hit.ChunkID]; dup {
			continue
		}
		seen[hit.ChunkID] = struct{}{}
		out = append(out, hit)
	}
	return out
}

// filterAdmitted drops hits whose chunk is missing or fails a scope filter.
// Filters are hard: exclusion happens before fusion, never after.
func filterAdmitted(hits []domain.ScoredChunk, byID map[string]domain.Chunk, scope domain.SearchScope) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := byID[hit.ChunkID]
		if !ok {
			continue
		}
		if !scope.Admits(chunk) {
			continue
		}
		out = append(out, hit)
	}
	return out
}
