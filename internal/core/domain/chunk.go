package domain

import "time"

// RetrievalSource tags which index produced a scored chunk.
type RetrievalSource string

const (
	SourceLexical RetrievalSource = "lexical"
	SourceVector  RetrievalSource = "vector"
)

// SourceRef ties a chunk back to the paper it was cut from and the project
// that owns the paper.
type SourceRef struct {
	PaperID   string `json:"paper_id"`
	ProjectID string `json:"project_id"`
}

type ChunkMetadata struct {
	Title       string    `json:"title,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Category    string    `json:"category,omitempty"`
	PublishedOn time.Time `json:"published_on,omitempty"`
}

// Chunk is one indexed span of paper text. Chunks are written by the
// ingestion service; this engine only reads them.
type Chunk struct {
	ID       string        `json:"id"`
	Source   SourceRef     `json:"source"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ScoredChunk is a per-query hit from a single index. The score scale is
// source-specific and only comparable within one list.
type ScoredChunk struct {
	ChunkID string
	Score   float64
	Source  RetrievalSource
}

// FusedResult is a chunk after rank fusion. Within one fused list FusionRank
// is a strict gapless 1..N order, non-increasing in FusionScore.
type FusedResult struct {
	Chunk       Chunk   `json:"chunk"`
	FusionRank  int     `json:"fusion_rank"`
	FusionScore float64 `json:"fusion_score"`
}

// DateRange filters by publication date. Zero bounds are open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// SearchScope is the set of hard pre-filters for one retrieval round.
// A chunk failing any filter is excluded before fusion.
type SearchScope struct {
	ProjectID string    `json:"project_id"`
	Category  string    `json:"category,omitempty"`
	Dates     DateRange `json:"dates,omitempty"`
}

// Admits reports whether a chunk passes every scope filter.
func (s SearchScope) Admits(c Chunk) bool {
	if s.ProjectID != "" && c.Source.ProjectID != s.ProjectID {
		return false
	}
	if s.Category != "" && c.Metadata.Category != s.Category {
		return false
	}
	if !s.Dates.IsZero() {
		if c.Metadata.PublishedOn.IsZero() {
			return false
		}
		if !s.Dates.Contains(c.Metadata.PublishedOn) {
			return false
		}
	}
	return true
}

// ProjectContext is what the guardrail knows about a project.
type ProjectContext struct {
	ProjectID string   `json:"project_id"`
	Goal      string   `json:"goal"`
	Keywords  []string `json:"keywords"`
}
