// Package audit provides PostgreSQL persistence for the agent's audit
// trail: one row per run and one row per executed tool call.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/zalusdev/zalus/agent"
)

// Store wraps the underlying *sql.DB and provides typed query methods.
// It satisfies agent.ToolRecorder.
type Store struct {
	conn *sql.DB
}

var _ agent.ToolRecorder = (*Store)(nil)

// Open opens a PostgreSQL connection, verifies connectivity, and
// applies pending migrations.
func Open(databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit open: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit ping: %w", err)
	}
	if err := applyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit migrate: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Run is one agent run.
type Run struct {
	RunID     string    `json:"runId"`
	Owner     string    `json:"owner"`
	Repo      string    `json:"repo"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToolCall is one executed tool invocation within a run.
type ToolCall struct {
	ID        string          `json:"id"`
	RunID     string          `json:"runId"`
	Tool      string          `json:"tool"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// RecordToolCall persists one executed tool call, creating the run row
// on first sight. The run insert races harmlessly with concurrent
// calls for the same run.
func (s *Store) RecordToolCall(ctx context.Context, rec agent.ToolCallRecord) error {
	now := time.Now().UTC()
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO runs (run_id, owner, repo, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO NOTHING`,
		rec.RunID, rec.Owner, rec.Repo, now,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	params := rec.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	var result json.RawMessage
	if rec.Result != nil {
		b, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = b
	}

	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO tool_calls (id, run_id, tool, params, result, success, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), rec.RunID, rec.Tool, []byte(params), nullableJSON(result), rec.Success, rec.Error, now,
	); err != nil {
		return fmt.Errorf("insert tool_call: %w", err)
	}
	return nil
}

// ListRuns returns runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT run_id, owner, repo, created_at FROM runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.RunID, &r.Owner, &r.Repo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListToolCalls returns all tool calls for a run in execution order.
func (s *Store) ListToolCalls(ctx context.Context, runID string) ([]*ToolCall, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, run_id, tool, params, result, success, error, created_at
		 FROM tool_calls WHERE run_id = $1 ORDER BY created_at, id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tool_calls: %w", err)
	}
	defer rows.Close()

	calls := make([]*ToolCall, 0)
	for rows.Next() {
		tc := &ToolCall{}
		var params, result []byte
		if err := rows.Scan(&tc.ID, &tc.RunID, &tc.Tool, &params, &result, &tc.Success, &tc.Error, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool_call: %w", err)
		}
		tc.Params = json.RawMessage(params)
		tc.Result = json.RawMessage(result)
		calls = append(calls, tc)
	}
	return calls, rows.Err()
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
