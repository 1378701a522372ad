// Package store persists completed advisory runs to postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/stockpilot/stockpilot/config"
)

// RunRecord is one completed advisory run.
type RunRecord struct {
	ID           string    `json:"id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	AgentsUsed   []string  `json:"agents_used"`
	AgentCalls   int       `json:"agent_calls"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// RunStore reads and writes run records.
type RunStore struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to postgres and ensures the schema exists.
func Open(ctx context.Context, cfg config.PostgresConfig) (*RunStore, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres not configured")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := NewWithDB(db)
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *RunStore {
	return &RunStore{
		db:     db,
		logger: log.New(log.Writer(), "[Store] ", log.LstdFlags),
	}
}

func (s *RunStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS advisory_runs (
    id            UUID PRIMARY KEY,
    question      TEXT NOT NULL,
    answer        TEXT NOT NULL,
    agents_used   TEXT[] NOT NULL DEFAULT '{}',
    agent_calls   INT NOT NULL DEFAULT 0,
    input_tokens  BIGINT NOT NULL DEFAULT 0,
    output_tokens BIGINT NOT NULL DEFAULT 0,
    cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
    duration_ms   BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// SaveRun inserts one completed run.
func (s *RunStore) SaveRun(ctx context.Context, r RunRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO advisory_runs (id, question, answer, agents_used, agent_calls, input_tokens, output_tokens, cost, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Question, r.Answer, pq.Array(r.AgentsUsed), r.AgentCalls,
		r.InputTokens, r.OutputTokens, r.Cost, r.DurationMS, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, question, answer, agents_used, agent_calls, input_tokens, output_tokens, cost, duration_ms, created_at
FROM advisory_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, pq.Array(&r.AgentsUsed), &r.AgentCalls,
			&r.InputTokens, &r.OutputTokens, &r.Cost, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *RunStore) Close() error {
	return s.db.Close()
}
