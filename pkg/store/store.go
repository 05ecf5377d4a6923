// Package store persists workflows, runs, and step records. The SQLite
// implementation serializes concurrent writes per run through the database;
// callers never share transactions.
package store

import (
	"context"

	"github.com/getvergo/vergo-agent/pkg/types"
)

// Store is the full persistence surface: workflow lookup plus run/step
// recording. It satisfies the engine's WorkflowStore and RunStore
// capabilities.
type Store interface {
	// SaveWorkflow inserts or replaces a workflow definition.
	SaveWorkflow(ctx context.Context, w *types.Workflow) error

	// FindWorkflow returns the workflow for the id, or the engine's
	// ErrWorkflowNotFound.
	FindWorkflow(ctx context.Context, id string) (*types.Workflow, error)

	// ListWorkflows returns every stored workflow id with its name.
	ListWorkflows(ctx context.Context) (map[string]string, error)

	// CreateRun creates a run record in the running state and returns its id.
	CreateRun(ctx context.Context, workflowID string) (string, error)

	// UpdateRun patches the run record with the result's current state.
	UpdateRun(ctx context.Context, result *types.RunResult) error

	// GetRun loads a finalized or in-flight run record.
	GetRun(ctx context.Context, runID string) (*types.RunResult, error)

	// CreateStepRecord appends one step result to the run.
	CreateStepRecord(ctx context.Context, runID string, step types.StepResult) error

	// Close releases the underlying storage.
	Close() error
}
