package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/infrastructure/resilience"
)

// Client talks to a single Ollama instance. The capability adapters below
// (Embedder, Judge, Rewriter, Guardrail, Generator) share one client so the
// circuit breaker state is shared per operation across the whole process.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Judge classifies a single excerpt against the active query.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Judge(ctx context.Context, query, chunkText string) (domain.ChunkVerdict, error) {
	respText, err := j.client.generateJSON(ctx, buildJudgePrompt(query, chunkText))
	if err != nil {
		return domain.ChunkVerdict{}, err
	}

	var result struct {
		Relevant   bool    `json:"relevant"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.ChunkVerdict{}, fmt.Errorf("parse judge json: %w", err)
	}
	return domain.ChunkVerdict{Relevant: result.Relevant, Confidence: result.Confidence}, nil
}

// Rewriter proposes a replacement search query after a weak retrieval round.
type Rewriter struct {
	client *Client
}

func NewRewriter(client *Client) *Rewriter {
	return &Rewriter{client: client}
}

func (r *Rewriter) Rewrite(ctx context.Context, original, current string, offTopic []domain.Chunk, attempt int) (string, error) {
	respText, err := r.client.generateJSON(ctx, buildRewritePrompt(original, current, offTopic, attempt))
	if err != nil {
		return "", err
	}

	var result struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return "", fmt.Errorf("parse rewrite json: %w", err)
	}
	return strings.TrimSpace(result.Query), nil
}

// Guardrail classifies whether a question belongs to the project's scope.
type Guardrail struct {
	client *Client
}

func NewGuardrail(client *Client) *Guardrail {
	return &Guardrail{client: client}
}

func (g *Guardrail) Check(ctx context.Context, query string, project domain.ProjectContext) (domain.GuardrailDecision, error) {
	respText, err := g.client.generateJSON(ctx, buildGuardrailPrompt(query, project))
	if err != nil {
		return domain.GuardrailDecision{}, err
	}

	var result struct {
		InScope bool   `json:"in_scope"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.GuardrailDecision{}, fmt.Errorf("parse guardrail json: %w", err)
	}
	return domain.GuardrailDecision{InScope: result.InScope, Reason: strings.TrimSpace(result.Reason)}, nil
}

// Generator produces the grounded answer from a prompt the composer built.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (domain.Generation, error) {
	respText, err := g.client.generateJSON(ctx, prompt)
	if err != nil {
		return domain.Generation{}, err
	}

	var result struct {
		Answer       string   `json:"answer"`
		UsedChunkIDs []string `json:"used_chunk_ids"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.Generation{}, fmt.Errorf("parse generation json: %w", err)
	}
	return domain.Generation{
		Text:         strings.TrimSpace(result.Answer),
		UsedChunkIDs: result.UsedChunkIDs,
	}, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
