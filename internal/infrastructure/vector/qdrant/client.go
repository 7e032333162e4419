package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
)

// Client queries a chunk collection that carries two vectors per point: a
// dense embedding under the "dense" name and a BM25-style sparse vector under
// "lexical". Indexing happens out of process; this client only searches.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) SearchVector(ctx context.Context, vector []float32, scope domain.SearchScope, topN int) ([]domain.ScoredChunk, error) {
	reqBody := map[string]any{
		"query":        vector,
		"using":        "dense",
		"limit":        topN,
		"with_payload": []string{"chunk_id"},
	}
	if filter := scopeFilter(scope); filter != nil {
		reqBody["filter"] = filter
	}
	return c.query(ctx, reqBody, domain.SourceVector)
}

func (c *Client) SearchLexical(ctx context.Context, query string, scope domain.SearchScope, topN int) ([]domain.ScoredChunk, error) {
	sparse := encodeSparseQuery(query)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query":        sparse,
		"using":        "lexical",
		"limit":        topN,
		"with_payload": []string{"chunk_id"},
	}
	if filter := scopeFilter(scope); filter != nil {
		reqBody["filter"] = filter
	}
	return c.query(ctx, reqBody, domain.SourceLexical)
}

func (c *Client) query(ctx context.Context, reqBody map[string]any, source domain.RetrievalSource) ([]domain.ScoredChunk, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return nil, fmt.Errorf("qdrant query status: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("qdrant query status: %s", resp.Status)
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		chunkID := getStringPayload(p.Payload, "chunk_id")
		if chunkID == "" {
			continue
		}
		out = append(out, domain.ScoredChunk{
			ChunkID: chunkID,
			Score:   p.Score,
			Source:  source,
		})
	}
	return out, nil
}

// scopeFilter translates the search scope into a qdrant payload filter.
// Points are indexed with project_id, category and published_ts (unix
// seconds) payload fields.
func scopeFilter(scope domain.SearchScope) map[string]any {
	must := make([]map[string]any, 0, 3)
	if scope.ProjectID != "" {
		must = append(must, map[string]any{
			"key":   "project_id",
			"match": map[string]any{"value": scope.ProjectID},
		})
	}
	if scope.Category != "" {
		must = append(must, map[string]any{
			"key":   "category",
			"match": map[string]any{"value": scope.Category},
		})
	}
	if !scope.Dates.IsZero() {
		dateRange := map[string]any{}
		if !scope.Dates.From.IsZero() {
			dateRange["gte"] = scope.Dates.From.Unix()
		}
		if !scope.Dates.To.IsZero() {
			dateRange["lte"] = scope.Dates.To.Unix()
		}
		must = append(must, map[string]any{
			"key":   "published_ts",
			"range": dateRange,
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
