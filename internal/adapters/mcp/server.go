package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

// Server exposes the answer engine as an MCP tool so agent frontends can ask
// project-scoped questions without going through the HTTP API.
type Server struct {
	answers ports.AnswerService
	logger  *slog.Logger
	mcp     *server.MCPServer
}

func NewServer(answers ports.AnswerService, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		answers: answers,
		logger:  logger,
		mcp: server.NewMCPServer(
			"researchhub-answer-engine",
			version,
			server.WithToolCapabilities(false),
		),
	}

	tool := mcp.NewTool("paper_qa",
		mcp.WithDescription("Answer a question from a research project's paper collection. Every claim in the answer carries citations to the paper chunks it was grounded on."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project whose papers are searched"),
		),
		mcp.WithString("category",
			mcp.Description("Optional arXiv-style category filter, e.g. cs.IR"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Optional number of chunks per retrieval round"),
		),
	)
	s.mcp.AddTool(tool, s.handlePaperQA)

	return s
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handlePaperQA(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := s.answers.Answer(ctx, domain.AskRequest{
		Question:  question,
		ProjectID: projectID,
		Category:  req.GetString("category", ""),
		TopK:      req.GetInt("top_k", 0),
	})
	if err != nil {
		s.logger.Warn("paper_qa_failed", "project_id", projectID, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}

	payload, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("marshal answer: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
