package ollama

import (
	"fmt"
	"strings"

	"github.com/researchhub/researchhub/internal/core/domain"
)

const maxSnippet = 4000

func snippetOf(text string) string {
	if len(text) > maxSnippet {
		return text[:maxSnippet]
	}
	return text
}

func buildJudgePrompt(query, chunkText string) string {
	return fmt.Sprintf(`You grade whether a paper excerpt helps answer a research question.
Return strict JSON object with keys:
relevant (boolean), confidence (number from 0 to 1).
No markdown, no extra keys.

Question:
%s

Excerpt:
%s`, query, snippetOf(chunkText))
}

func buildRewritePrompt(original, current string, offTopic []domain.Chunk, attempt int) string {
	var offTopicBuilder strings.Builder
	for idx, chunk := range offTopic {
		if idx >= 3 {
			break
		}
		offTopicBuilder.WriteString(fmt.Sprintf("[%d] %s\n", idx+1, snippetOf(chunk.Text)))
	}
	offTopicBlock := offTopicBuilder.String()
	if offTopicBlock == "" {
		offTopicBlock = "(none retrieved)"
	}

	return fmt.Sprintf(`A paper search returned mostly irrelevant excerpts. Propose one better search query.
Keep the user's intent from the original question. Do not repeat the current query.
Return strict JSON object with a single key: query (string).
No markdown, no extra keys.

Original question:
%s

Current query (attempt %d):
%s

Irrelevant excerpts that were retrieved:
%s`, original, attempt, current, offTopicBlock)
}

func buildGuardrailPrompt(query string, project domain.ProjectContext) string {
	keywords := strings.Join(project.Keywords, ", ")
	if keywords == "" {
		keywords = "(none listed)"
	}

	return fmt.Sprintf(`You decide whether a question belongs to a research project's scope.
A question is in scope when the project's paper collection could plausibly answer it.
Return strict JSON object with keys:
in_scope (boolean), reason (string, short, user-facing).
No markdown, no extra keys.

Project goal:
%s

Project keywords:
%s

Question:
%s`, project.Goal, keywords, query)
}
