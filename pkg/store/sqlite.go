package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getvergo/vergo-agent/pkg/engine"
	"github.com/getvergo/vergo-agent/pkg/types"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and applies
// migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			workflow_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			actions TEXT NOT NULL,
			logic_spec TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME,
			error TEXT,
			summary TEXT,
			metadata TEXT,
			FOREIGN KEY (workflow_id) REFERENCES workflows(workflow_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			action_id TEXT NOT NULL,
			loop_id TEXT,
			iteration INTEGER NOT NULL DEFAULT -1,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			rule_results TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveWorkflow inserts or replaces a workflow definition.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, w *types.Workflow) error {
	actions, err := json.Marshal(w.Actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}

	var spec interface{}
	if w.LogicSpec != nil {
		encoded, err := json.Marshal(w.LogicSpec)
		if err != nil {
			return fmt.Errorf("encoding logic spec: %w", err)
		}
		spec = string(encoded)
	}
	metadata, _ := json.Marshal(w.Metadata)

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflows (workflow_id, name, actions, logic_spec, metadata) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.Name, string(actions), spec, string(metadata))
	return err
}

// FindWorkflow returns the workflow for the id, or engine.ErrWorkflowNotFound.
func (s *SQLiteStore) FindWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var w types.Workflow
	var actions string
	var spec, metadata sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, name, actions, logic_spec, metadata FROM workflows WHERE workflow_id = ?`, id).
		Scan(&w.ID, &w.Name, &actions, &spec, &metadata)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow %q: %w", id, engine.ErrWorkflowNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actions), &w.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions for workflow %q: %w", id, err)
	}
	if spec.Valid && spec.String != "" {
		w.LogicSpec = &types.LogicSpec{}
		if err := json.Unmarshal([]byte(spec.String), w.LogicSpec); err != nil {
			return nil, fmt.Errorf("decoding logic spec for workflow %q: %w", id, err)
		}
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		_ = json.Unmarshal([]byte(metadata.String), &w.Metadata)
	}
	return &w, nil
}

// ListWorkflows returns every stored workflow id with its name.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT workflow_id, name FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// CreateRun creates a run record in the running state and returns its id.
func (s *SQLiteStore) CreateRun(ctx context.Context, workflowID string) (string, error) {
	runID := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow_id, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, workflowID, string(types.RunStatusRunning), time.Now())
	if err != nil {
		return "", err
	}
	return runID, nil
}

// UpdateRun patches the run record with the result's current state.
func (s *SQLiteStore) UpdateRun(ctx context.Context, result *types.RunResult) error {
	summary, _ := json.Marshal(result.Summary)
	metadata, _ := json.Marshal(result.Metadata)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ?, summary = ?, metadata = ? WHERE run_id = ?`,
		string(result.Status), result.FinishedAt, result.Error, string(summary), string(metadata), result.RunID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %q does not exist", result.RunID)
	}
	return nil
}

// GetRun loads a run record. Step records are loaded alongside it.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*types.RunResult, error) {
	var r types.RunResult
	var status string
	var finished sql.NullTime
	var errMsg, summary, metadata sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, workflow_id, status, started_at, finished_at, error, summary, metadata FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.WorkflowID, &status, &r.StartedAt, &finished, &errMsg, &summary, &metadata)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return nil, err
	}

	r.Status = types.RunStatus(status)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if summary.Valid && summary.String != "" {
		_ = json.Unmarshal([]byte(summary.String), &r.Summary)
	}
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &r.Metadata)
	}

	steps, err := s.loadSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.Steps = steps
	return &r, nil
}

// CreateStepRecord appends one step result to the run.
func (s *SQLiteStore) CreateStepRecord(ctx context.Context, runID string, step types.StepResult) error {
	ruleResults, _ := json.Marshal(step.RuleResults)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, action_id, loop_id, iteration, status, attempts, error, rule_results, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, step.ActionID, step.LoopID, step.Iteration, string(step.Status),
		step.Attempts, step.Error, string(ruleResults), step.StartedAt, step.FinishedAt)
	return err
}

// loadSteps returns a run's step records in insertion order.
func (s *SQLiteStore) loadSteps(ctx context.Context, runID string) ([]types.StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, loop_id, iteration, status, attempts, error, rule_results, started_at, finished_at
		 FROM steps WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []types.StepResult
	for rows.Next() {
		var st types.StepResult
		var status string
		var loopID, errMsg, ruleResults sql.NullString
		var started, finished sql.NullTime

		if err := rows.Scan(&st.ActionID, &loopID, &st.Iteration, &status, &st.Attempts,
			&errMsg, &ruleResults, &started, &finished); err != nil {
			return nil, err
		}
		st.Status = types.StepStatus(status)
		if loopID.Valid {
			st.LoopID = loopID.String
		}
		if errMsg.Valid {
			st.Error = errMsg.String
		}
		if ruleResults.Valid && ruleResults.String != "" && ruleResults.String != "null" {
			_ = json.Unmarshal([]byte(ruleResults.String), &st.RuleResults)
		}
		if started.Valid {
			st.StartedAt = started.Time
		}
		if finished.Valid {
			st.FinishedAt = finished.Time
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
