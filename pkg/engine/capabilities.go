package engine

import (
	"context"
	"errors"
	"time"

	"github.com/getvergo/vergo-agent/pkg/types"
)

// ErrWorkflowNotFound is returned by WorkflowStore implementations when no
// workflow exists for the requested id.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Driver is the browser-automation capability the engine executes primitives
// against. Implementations map each call onto one live page; the context
// carries the per-attempt deadline.
type Driver interface {
	// Navigate loads a URL in the page.
	Navigate(ctx context.Context, url string) error

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Type fills the element matching the selector with the value.
	Type(ctx context.Context, selector, value string) error

	// Select chooses an option by value in a select element.
	Select(ctx context.Context, selector, value string) error

	// Hover hovers the element matching the selector.
	Hover(ctx context.Context, selector string) error

	// WaitForSelector blocks until the selector is present or the timeout
	// elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Download navigates to a URL and captures the resulting file bytes.
	Download(ctx context.Context, url string) ([]byte, error)

	// CurrentURL reports the page's current location.
	CurrentURL() string
}

// WorkflowStore loads stored workflows.
type WorkflowStore interface {
	// FindWorkflow returns the workflow for the id, or ErrWorkflowNotFound.
	FindWorkflow(ctx context.Context, id string) (*types.Workflow, error)
}

// RunStore persists run and step records. Implementations must serialize
// concurrent writes per run id.
type RunStore interface {
	// CreateRun creates a run record in the running state and returns its id.
	CreateRun(ctx context.Context, workflowID string) (string, error)

	// UpdateRun finalizes or patches the run record.
	UpdateRun(ctx context.Context, result *types.RunResult) error

	// CreateStepRecord appends one step result to the run.
	CreateStepRecord(ctx context.Context, runID string, step types.StepResult) error
}

// LoginExecutor performs the authentication sequence against a live page:
// navigate to the login URL, detect the form, submit credentials.
type LoginExecutor interface {
	Login(ctx context.Context, cfg *types.LoginConfig) error
}
