package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/researchhub/researchhub/internal/core/domain"
)

// AnswerLogRepository persists the audit trail of answered questions. It is
// the only table this service owns, so it also carries the schema bootstrap.
type AnswerLogRepository struct {
	db *sql.DB
}

func NewAnswerLogRepository(db *sql.DB) *AnswerLogRepository {
	return &AnswerLogRepository{db: db}
}

func (r *AnswerLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answer_log (
	answer_id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	question TEXT NOT NULL,
	final_query TEXT NOT NULL,
	rounds INTEGER NOT NULL,
	terminal_reason TEXT NOT NULL,
	citation_count INTEGER NOT NULL,
	partial BOOLEAN NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answer_log_project ON answer_log(project_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_answer_log_created_at ON answer_log(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AnswerLogRepository) Insert(ctx context.Context, event domain.AnswerEvent) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO answer_log (
	answer_id, project_id, question, final_query, rounds, terminal_reason, citation_count, partial, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (answer_id) DO NOTHING
`,
		event.AnswerID, event.ProjectID, event.Question, event.FinalQuery, event.Rounds,
		string(event.TerminalReason), event.CitationCount, event.Partial, event.DurationMillis, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer log: %w", err)
	}
	return nil
}

func (r *AnswerLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.AnswerEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT answer_id, project_id, question, final_query, rounds, terminal_reason, citation_count, partial, duration_ms, created_at
FROM answer_log
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query answer log: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AnswerEvent, 0, limit)
	for rows.Next() {
		var (
			event  domain.AnswerEvent
			reason string
		)
		err := rows.Scan(
			&event.AnswerID, &event.ProjectID, &event.Question, &event.FinalQuery, &event.Rounds,
			&reason, &event.CitationCount, &event.Partial, &event.DurationMillis, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan answer log row: %w", err)
		}
		event.TerminalReason = domain.TerminalReason(reason)
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer log: %w", err)
	}
	return out, nil
}
