package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/researchhub/researchhub/internal/core/domain"
	"github.com/researchhub/researchhub/internal/core/ports"
)

const outOfScopeAnswer = "This question is outside the scope of this research project, so its papers were not searched."

type AnswerConfig struct {
	MaxRetries        int
	AdequacyThreshold float64
	TopK              int
}

func (c AnswerConfig) withDefaults() AnswerConfig {
	out := c
	if out.MaxRetries <= 0 {
		out.MaxRetries = 2
	}
	if out.AdequacyThreshold <= 0 || out.AdequacyThreshold > 1 {
		out.AdequacyThreshold = 0.5
	}
	if out.TopK <= 0 {
		out.TopK = 5
	}
	return out
}

type flowState int

const (
	stateGuardrailing flowState = iota
	stateRetrieving
	stateGrading
	stateRewriting
	stateComposing
	stateDone
)

// AnswerFlow is the answer state machine:
// Guardrailing -> Retrieving -> Grading -> (Rewriting -> Retrieving)* -> Composing.
// The rewrite loop is bounded by MaxRetries and by duplicate-query detection,
// so a request performs at most MaxRetries+1 retrieval rounds.
type AnswerFlow struct {
	guardrail *Guardrail
	retriever *Retriever
	grader    *EvidenceGrader
	rewriter  *QueryReformulator
	composer  *AnswerComposer
	audit     ports.AnswerAuditSink
	logger    *slog.Logger
	cfg       AnswerConfig
}

func NewAnswerFlow(
	guardrail *Guardrail,
	retriever *Retriever,
	grader *EvidenceGrader,
	rewriter *QueryReformulator,
	composer *AnswerComposer,
	audit ports.AnswerAuditSink,
	logger *slog.Logger,
	cfg AnswerConfig,
) *AnswerFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerFlow{
		guardrail: guardrail,
		retriever: retriever,
		grader:    grader,
		rewriter:  rewriter,
		composer:  composer,
		audit:     audit,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

func (f *AnswerFlow) Answer(ctx context.Context, req domain.AskRequest) (*domain.CitedAnswer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("question is required"))
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("project_id is required"))
	}

	start := time.Now()
	scope := domain.SearchScope{
		ProjectID: req.ProjectID,
		Category:  req.Category,
		Dates:     req.Dates,
	}
	st := domain.NewQueryState(question)

	var (
		verdict domain.EvidenceVerdict
		comp    Composition
		rounds  int
	)
	reason := domain.ReasonAnswered
	state := stateGuardrailing

	for state != stateDone {
		switch state {
		case stateGuardrailing:
			decision, err := f.guardrail.Check(ctx, req.ProjectID, question)
			if err != nil {
				return nil, err
			}
			if !decision.InScope {
				reason = domain.ReasonOutOfScope
				comp = Composition{
					Text:      refusalText(decision.Reason),
					Citations: []domain.Citation{},
				}
				state = stateDone
				continue
			}
			state = stateRetrieving

		case stateRetrieving:
			round, err := f.retriever.Retrieve(ctx, st.CurrentQuery, scope, req.TopK)
			if err != nil {
				return nil, err
			}
			rounds++
			st.Merge(round.Results)
			st.Partial = st.Partial || round.Partial
			state = stateGrading

		case stateGrading:
			verdict = f.grader.Grade(ctx, st.CurrentQuery, st.Accumulated())
			fraction := verdict.RelevantFraction(st.AccumulatedIDs())
			switch {
			case fraction >= f.cfg.AdequacyThreshold:
				state = stateComposing
			case st.AttemptCount >= f.cfg.MaxRetries:
				reason = domain.ReasonLoopExhausted
				state = stateComposing
			default:
				state = stateRewriting
			}

		case stateRewriting:
			st.AttemptCount++
			proposal := f.rewriter.Rewrite(ctx, st.OriginalQuery, st.CurrentQuery, irrelevantChunks(st, verdict), st.AttemptCount)
			if proposal == "" || !st.MarkTried(proposal) {
				// Converged: the rewriter has nothing new, compose from
				// whatever evidence exists instead of looping.
				reason = domain.ReasonRewriteConverged
				state = stateComposing
				continue
			}
			st.CurrentQuery = proposal
			state = stateRetrieving

		case stateComposing:
			composed, err := f.composer.Compose(ctx, question, relevantEvidence(st, verdict), verdict)
			if err != nil {
				return nil, err
			}
			comp = composed
			state = stateDone
		}
	}

	answer := &domain.CitedAnswer{
		ID:                   uuid.NewString(),
		ProjectID:            req.ProjectID,
		Question:             question,
		Answer:               comp.Text,
		Citations:            comp.Citations,
		TerminalReason:       reason,
		Rounds:               rounds,
		Partial:              st.Partial,
		InsufficientEvidence: comp.InsufficientEvidence,
	}
	if answer.Citations == nil {
		answer.Citations = []domain.Citation{}
	}

	f.publishAudit(ctx, answer, st.CurrentQuery, time.Since(start))
	return answer, nil
}

func (f *AnswerFlow) publishAudit(ctx context.Context, answer *domain.CitedAnswer, finalQuery string, elapsed time.Duration) {
	if f.audit == nil {
		return
	}
	event := domain.AnswerEvent{
		AnswerID:       answer.ID,
		ProjectID:      answer.ProjectID,
		Question:       answer.Question,
		FinalQuery:     finalQuery,
		Rounds:         answer.Rounds,
		TerminalReason: answer.TerminalReason,
		CitationCount:  len(answer.Citations),
		Partial:        answer.Partial,
		DurationMillis: elapsed.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := f.audit.PublishAnswerRecorded(ctx, event); err != nil {
		f.logger.Warn("answer_audit_publish_failed", "answer_id", answer.ID, "error", err)
	}
}

func refusalText(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return outOfScopeAnswer
	}
	return outOfScopeAnswer + " " + reason
}

// relevantEvidence keeps accumulated chunks currently judged relevant.
// Without a verdict (grading never ran) all accumulated chunks pass.
func relevantEvidence(st *domain.QueryState, verdict domain.EvidenceVerdict) []domain.FusedResult {
	accumulated := st.Accumulated()
	if verdict == nil {
		return accumulated
	}
	out := make([]domain.FusedResult, 0, len(accumulated))
	for _, item := range accumulated {
		if v, ok := verdict[item.Chunk.ID]; ok && !v.Relevant {
			continue
		}
		out = append(out, item)
	}
	return out
}

func irrelevantChunks(st *domain.QueryState, verdict domain.EvidenceVerdict) []domain.Chunk {
	if verdict == nil {
		return nil
	}
	var out []domain.Chunk
	for _, item := range st.Accumulated() {
		if v, ok := verdict[item.Chunk.ID]; ok && !v.Relevant {
			out = append(out, item.Chunk)
		}
	}
	return out
}
