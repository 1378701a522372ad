package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestSaveRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	mock.ExpectExec("INSERT INTO advisory_runs").
		WithArgs("run-1", "Is NVDA oversold?", "Yes, RSI is 28.5.",
			pq.Array([]string{"TechnicalAnalyst"}), 1, int64(100), int64(40), 0.002, int64(4200),
			sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.SaveRun(context.Background(), RunRecord{
		ID:           "run-1",
		Question:     "Is NVDA oversold?",
		Answer:       "Yes, RSI is 28.5.",
		AgentsUsed:   []string{"TechnicalAnalyst"},
		AgentCalls:   1,
		InputTokens:  100,
		OutputTokens: 40,
		Cost:         0.002,
		DurationMS:   4200,
	})
	if err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "question", "answer", "agents_used", "agent_calls",
		"input_tokens", "output_tokens", "cost", "duration_ms", "created_at",
	}).AddRow("run-2", "q2", "a2", "{TechnicalAnalyst,SentimentAnalyst}", 2,
		int64(200), int64(80), 0.004, int64(9000), now).
		AddRow("run-1", "q1", "a1", "{MarketResearcher}", 1,
			int64(100), int64(40), 0.002, int64(4200), now.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, question, answer").
		WithArgs(20).
		WillReturnRows(rows)

	got, err := s.ListRuns(context.Background(), 20)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].ID != "run-2" {
		t.Fatalf("expected newest first, got %s", got[0].ID)
	}
	if len(got[0].AgentsUsed) != 2 || got[0].AgentsUsed[0] != "TechnicalAnalyst" {
		t.Fatalf("agents_used decoded wrong: %v", got[0].AgentsUsed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRunsDefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT id, question, answer").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "question", "answer", "agents_used", "agent_calls",
			"input_tokens", "output_tokens", "cost", "duration_ms", "created_at",
		}))

	if _, err := s.ListRuns(context.Background(), 0); err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
