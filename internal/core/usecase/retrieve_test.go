package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/researchhub/researchhub/internal/core/domain"
)

type retEmbedderFake struct {
	calls int32
	err   error
}

func (f *retEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type retLexicalFake struct {
	calls int32
	hits  []domain.ScoredChunk
	err   error
}

func (f *retLexicalFake) SearchLexical(context.Context, string, domain.SearchScope, int) ([]domain.ScoredChunk, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type retVectorFake struct {
	calls int32
	hits  []domain.ScoredChunk
	err   error
}

func (f *retVectorFake) SearchVector(context.Context, []float32, domain.SearchScope, int) ([]domain.ScoredChunk, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type retChunkStoreFake struct {
	chunks map[string]domain.Chunk
	err    error
}

func (f *retChunkStoreFake) FetchByIDs(_ context.Context, ids []string) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func projectChunk(id, projectID string) domain.Chunk {
	return domain.Chunk{
		ID:     id,
		Source: domain.SourceRef{PaperID: "paper-" + id, ProjectID: projectID},
		Text:   "text of " + id,
	}
}

func chunkMapFor(projectID string, ids ...string) map[string]domain.Chunk {
	out := make(map[string]domain.Chunk, len(ids))
	for _, id := range ids {
		out[id] = projectChunk(id, projectID)
	}
	return out
}

func newTestRetriever(embedder *retEmbedderFake, lexical *retLexicalFake, vector *retVectorFake, store *retChunkStoreFake) *Retriever {
	return NewRetriever(embedder, lexical, vector, store, nil, RetrieverConfig{})
}

func resultOrder(results []domain.FusedResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Chunk.ID)
	}
	return out
}

func TestRetrieverFusesBothLists(t *testing.T) {
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{hits: scoredList("A", "B", "C")},
		&retVectorFake{hits: scoredList("B", "C", "D")},
		&retChunkStoreFake{chunks: chunkMapFor("p1", "A", "B", "C", "D")},
	)

	round, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if round.Partial {
		t.Fatalf("expected full round, got partial")
	}
	got := resultOrder(round.Results)
	want := []string{"B", "C", "A", "D"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	for i, r := range round.Results {
		if r.FusionRank != i+1 {
			t.Fatalf("expected gapless ranks, got %d at position %d", r.FusionRank, i)
		}
	}
}

func TestRetrieverTruncatesToTopK(t *testing.T) {
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{hits: scoredList("A", "B", "C")},
		&retVectorFake{hits: scoredList("B", "C", "D")},
		&retChunkStoreFake{chunks: chunkMapFor("p1", "A", "B", "C", "D")},
	)

	round, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(round.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(round.Results))
	}
}

func TestRetrieverAppliesScopeFilterBeforeFusion(t *testing.T) {
	chunks := chunkMapFor("p1", "B", "C", "D")
	chunks["A"] = projectChunk("A", "other-project")
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{hits: scoredList("A", "B", "C")},
		&retVectorFake{hits: scoredList("B", "C", "D")},
		&retChunkStoreFake{chunks: chunks},
	)

	round, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, r := range round.Results {
		if r.Chunk.ID == "A" {
			t.Fatalf("expected out-of-scope chunk excluded, got %v", resultOrder(round.Results))
		}
	}
	if len(round.Results) != 3 {
		t.Fatalf("expected 3 in-scope results, got %d", len(round.Results))
	}
}

func TestRetrieverDropsIdsMissingFromStore(t *testing.T) {
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{hits: scoredList("A", "B")},
		&retVectorFake{hits: scoredList("B", "ghost")},
		&retChunkStoreFake{chunks: chunkMapFor("p1", "A", "B")},
	)

	round, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, r := range round.Results {
		if r.Chunk.ID == "ghost" {
			t.Fatalf("expected missing id dropped, got %v", resultOrder(round.Results))
		}
	}
}

func TestRetrieverDegradesToSurvivingScorer(t *testing.T) {
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{err: errors.New("index down")},
		&retVectorFake{hits: scoredList("B", "C", "D")},
		&retChunkStoreFake{chunks: chunkMapFor("p1", "B", "C", "D")},
	)

	round, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !round.Partial {
		t.Fatalf("expected partial round")
	}
	got := resultOrder(round.Results)
	want := []string{"B", "C", "D"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected surviving list order %v, got %v", want, got)
		}
	}
}

func TestRetrieverFailsWhenBothScorersFail(t *testing.T) {
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{err: errors.New("lexical down")},
		&retVectorFake{err: errors.New("vector down")},
		&retChunkStoreFake{chunks: map[string]domain.Chunk{}},
	)

	_, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieverPropagatesEmbeddingFailure(t *testing.T) {
	lexical := &retLexicalFake{hits: scoredList("A")}
	vector := &retVectorFake{hits: scoredList("A")}
	retriever := newTestRetriever(
		&retEmbedderFake{err: errors.New("embedder down")},
		lexical,
		vector,
		&retChunkStoreFake{chunks: chunkMapFor("p1", "A")},
	)

	_, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if atomic.LoadInt32(&lexical.calls) != 0 || atomic.LoadInt32(&vector.calls) != 0 {
		t.Fatalf("expected no scorer calls after embedding failure")
	}
}

func TestRetrieverEmptyCorpusMatchIsNotAnError(t *testing.T) {
	retriever := newTestRetriever(
		&retEmbedderFake{},
		&retLexicalFake{},
		&retVectorFake{},
		&retChunkStoreFake{chunks: map[string]domain.Chunk{}},
	)

	round, err := retriever.Retrieve(context.Background(), "q", domain.SearchScope{ProjectID: "p1"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(round.Results) != 0 {
		t.Fatalf("expected empty result, got %d", len(round.Results))
	}
}
