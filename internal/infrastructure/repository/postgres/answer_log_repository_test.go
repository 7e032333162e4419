package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/researchhub/researchhub/internal/core/domain"
)

func newAnswerLogRepoWithMock(t *testing.T) (*AnswerLogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &AnswerLogRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newAnswerLogRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(int64(2026082401)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS answer_log").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertIsIdempotentOnAnswerID(t *testing.T) {
	repo, mock, done := newAnswerLogRepoWithMock(t)
	defer done()

	event := domain.AnswerEvent{
		AnswerID:       "a1",
		ProjectID:      "p1",
		Question:       "what is rrf",
		FinalQuery:     "reciprocal rank fusion",
		Rounds:         2,
		TerminalReason: domain.ReasonAnswered,
		CitationCount:  3,
		Partial:        false,
		DurationMillis: 412,
		CreatedAt:      time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO answer_log").
		WithArgs(
			event.AnswerID, event.ProjectID, event.Question, event.FinalQuery, event.Rounds,
			string(event.TerminalReason), event.CitationCount, event.Partial, event.DurationMillis, event.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), event); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentMapsRows(t *testing.T) {
	repo, mock, done := newAnswerLogRepoWithMock(t)
	defer done()

	created := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"answer_id", "project_id", "question", "final_query", "rounds",
		"terminal_reason", "citation_count", "partial", "duration_ms", "created_at",
	}).
		AddRow("a2", "p1", "q2", "q2", 1, "answered", 2, false, 300, created).
		AddRow("a1", "p1", "q1", "q1 rewritten", 3, "loop_exhausted", 0, true, 900, created.Add(-time.Minute))
	mock.ExpectQuery("SELECT answer_id, project_id, question").
		WithArgs(10).
		WillReturnRows(rows)

	events, err := repo.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].AnswerID != "a2" || events[0].TerminalReason != domain.ReasonAnswered {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].TerminalReason != domain.ReasonLoopExhausted || !events[1].Partial {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentDefaultsLimit(t *testing.T) {
	repo, mock, done := newAnswerLogRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT answer_id, project_id, question").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{
			"answer_id", "project_id", "question", "final_query", "rounds",
			"terminal_reason", "citation_count", "partial", "duration_ms", "created_at",
		}))

	events, err := repo.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
