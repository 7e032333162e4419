package domain

import "time"

// ChunkVerdict is one relevance judgment. Confidence is in [0,1].
type ChunkVerdict struct {
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
}

// EvidenceVerdict maps chunk id to its latest relevance judgment. Produced
// fresh each grading round, never persisted.
type EvidenceVerdict map[string]ChunkVerdict

// RelevantFraction returns the share of the given chunk ids judged relevant.
// Chunks without a verdict count as relevant (fail-open grading).
func (v EvidenceVerdict) RelevantFraction(ids []string) float64 {
	if len(ids) == 0 {
		return 0
	}
	relevant := 0
	for _, id := range ids {
		verdict, ok := v[id]
		if !ok || verdict.Relevant {
			relevant++
		}
	}
	return float64(relevant) / float64(len(ids))
}

// TerminalReason records how an answer request ended.
type TerminalReason string

const (
	ReasonAnswered         TerminalReason = "answered"
	ReasonOutOfScope       TerminalReason = "out_of_scope"
	ReasonLoopExhausted    TerminalReason = "loop_exhausted"
	ReasonRewriteConverged TerminalReason = "rewrite_converged"
)

// QueryState is the per-request state threaded through the answer loop.
// It is created for one request and discarded afterwards.
type QueryState struct {
	OriginalQuery string
	CurrentQuery  string
	AttemptCount  int
	Partial       bool

	accumulated []FusedResult
	seen        map[string]int
	tried       map[string]struct{}
}

func NewQueryState(query string) *QueryState {
	return &QueryState{
		OriginalQuery: query,
		CurrentQuery:  query,
		seen:          make(map[string]int),
		tried:         map[string]struct{}{query: {}},
	}
}

// Merge folds a fused round into the accumulated evidence, deduplicating by
// chunk id. Insertion order is preserved; a chunk seen again keeps the best
// (lowest) fusion rank observed across rounds.
func (s *QueryState) Merge(results []FusedResult) {
	for _, r := range results {
		idx, ok := s.seen[r.Chunk.ID]
		if !ok {
			s.seen[r.Chunk.ID] = len(s.accumulated)
			s.accumulated = append(s.accumulated, r)
			continue
		}
		if r.FusionRank < s.accumulated[idx].FusionRank {
			s.accumulated[idx].FusionRank = r.FusionRank
			s.accumulated[idx].FusionScore = r.FusionScore
		}
	}
}

// Accumulated returns the deduplicated evidence in insertion order.
func (s *QueryState) Accumulated() []FusedResult {
	out := make([]FusedResult, len(s.accumulated))
	copy(out, s.accumulated)
	return out
}

// AccumulatedIDs returns the chunk ids of the accumulated evidence.
func (s *QueryState) AccumulatedIDs() []string {
	ids := make([]string, 0, len(s.accumulated))
	for _, r := range s.accumulated {
		ids = append(ids, r.Chunk.ID)
	}
	return ids
}

// MarkTried records a query as attempted. It returns false if the query was
// already tried, which the loop treats as convergence.
func (s *QueryState) MarkTried(query string) bool {
	if _, dup := s.tried[query]; dup {
		return false
	}
	s.tried[query] = struct{}{}
	return true
}

// GuardrailDecision is the pre-retrieval scope check outcome.
type GuardrailDecision struct {
	InScope bool   `json:"in_scope"`
	Reason  string `json:"reason,omitempty"`
}

// Citation links one answer claim back to a retrieved chunk.
type Citation struct {
	ChunkID        string  `json:"chunk_id"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
}

// CitedAnswer is the final result of one answer request. Every citation
// refers to a chunk that was actually retrieved during the request.
type CitedAnswer struct {
	ID                   string         `json:"id"`
	ProjectID            string         `json:"project_id"`
	Question             string         `json:"question"`
	Answer               string         `json:"answer"`
	Citations            []Citation     `json:"citations"`
	TerminalReason       TerminalReason `json:"terminal_reason"`
	Rounds               int            `json:"rounds"`
	Partial              bool           `json:"partial,omitempty"`
	InsufficientEvidence bool           `json:"insufficient_evidence,omitempty"`
}

// Generation is the raw output of the generation capability.
type Generation struct {
	Text         string
	UsedChunkIDs []string
}

// AskRequest is the inbound Answer operation payload.
type AskRequest struct {
	Question  string    `json:"question"`
	ProjectID string    `json:"project_id"`
	Category  string    `json:"category,omitempty"`
	Dates     DateRange `json:"dates,omitempty"`
	TopK      int       `json:"top_k,omitempty"`
}

// AnswerEvent is the audit record emitted after each completed answer.
type AnswerEvent struct {
	AnswerID       string         `json:"answer_id"`
	ProjectID      string         `json:"project_id"`
	Question       string         `json:"question"`
	FinalQuery     string         `json:"final_query"`
	Rounds         int            `json:"rounds"`
	TerminalReason TerminalReason `json:"terminal_reason"`
	CitationCount  int            `json:"citation_count"`
	Partial        bool           `json:"partial"`
	DurationMillis int64          `json:"duration_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}
