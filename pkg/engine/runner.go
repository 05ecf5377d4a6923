// Package engine executes stored browser workflows: it expands a workflow's
// declarative logic layer into a concrete step sequence, resolves variable
// placeholders, evaluates per-step rules, and drives an injected browser
// capability with bounded retries, aggregating everything into a RunResult.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/getvergo/vergo-agent/pkg/domainscope"
	"github.com/getvergo/vergo-agent/pkg/logging"
	"github.com/getvergo/vergo-agent/pkg/types"
)

const (
	// DefaultStepTimeout bounds one primitive attempt when nothing
	// overrides it.
	DefaultStepTimeout = 30 * time.Second

	// DefaultLoginTimeout bounds the whole authentication sequence.
	DefaultLoginTimeout = 60 * time.Second
)

// Runner executes one stored workflow's action list against one live browser
// session, honoring an optional logic spec, and returns a fully-aggregated
// RunResult. Run never panics or returns an error to its caller: all failure
// information is folded into the result.
//
// A Runner holds no state that crosses runs beyond its injected capabilities,
// so multiple runners may execute concurrently, each bound to its own driver.
type Runner struct {
	workflows WorkflowStore
	runs      RunStore
	login     LoginExecutor
	scope     *domainscope.Scope
	log       *logging.Logger

	retry        RetryPolicy
	stepTimeout  time.Duration
	loginTimeout time.Duration

	driver Driver
}

// Option configures a Runner.
type Option func(*Runner)

// WithLoginExecutor sets the capability that performs login-gated
// authentication. Runs with RequiresLogin fail closed without one.
func WithLoginExecutor(l LoginExecutor) Option {
	return func(r *Runner) {
		r.login = l
	}
}

// WithDomainScope attaches a domain scope to the runner. Every navigation
// action is recorded against it and a denied navigation fails the step
// without executing it.
func WithDomainScope(s *domainscope.Scope) Option {
	return func(r *Runner) {
		r.scope = s
	}
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithRetryPolicy overrides the default per-step retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Runner) {
		r.retry = p
	}
}

// WithStepTimeout overrides the default per-attempt timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.stepTimeout = d
	}
}

// WithLoginTimeout overrides the authentication sequence timeout.
func WithLoginTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.loginTimeout = d
	}
}

// NewRunner creates a runner over the injected persistence capabilities.
// Initialize must be called with a driver before Run.
func NewRunner(workflows WorkflowStore, runs RunStore, opts ...Option) *Runner {
	r := &Runner{
		workflows:    workflows,
		runs:         runs,
		retry:        DefaultRetryPolicy(),
		stepTimeout:  DefaultStepTimeout,
		loginTimeout: DefaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log, _ = logging.NewLogger("engine")
	}
	return r
}

// Initialize binds the runner to a live browser driver. It must be called
// once before Run.
func (r *Runner) Initialize(driver Driver) error {
	if driver == nil {
		return fmt.Errorf("engine: driver must not be nil")
	}
	r.driver = driver
	return nil
}

// Cleanup releases the bound driver. Idempotent: safe to call multiple times
// or after a failed run. The driver's own resources (browser, page) belong to
// the caller and are not closed here.
func (r *Runner) Cleanup() {
	r.driver = nil
}

// orderedActions returns the workflow's actions sorted by their recorded
// order.
func orderedActions(w *types.Workflow) []types.WorkflowAction {
	actions := make([]types.WorkflowAction, len(w.Actions))
	copy(actions, w.Actions)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Order < actions[j].Order
	})
	return actions
}

// effectiveSpec picks the logic spec for a run: the config override wins,
// then the workflow's stored spec, then none.
func effectiveSpec(w *types.Workflow, cfg *types.RunConfig) *types.LogicSpec {
	if cfg != nil && cfg.LogicSpec != nil {
		return cfg.LogicSpec
	}
	return w.LogicSpec
}

// effectiveRetry derives the retry policy for one action from the runner
// default, the logic spec settings, and the action's own override.
func (r *Runner) effectiveRetry(spec *types.LogicSpec, action types.WorkflowAction) RetryPolicy {
	p := r.retry
	if spec != nil && spec.Settings.RetryAttempts > 0 {
		p.MaxAttempts = spec.Settings.RetryAttempts
	}
	if action.RetryCount > 0 {
		p.MaxAttempts = action.RetryCount
	}
	return p
}

// effectiveTimeout derives the per-attempt timeout for one action.
func (r *Runner) effectiveTimeout(spec *types.LogicSpec, action types.WorkflowAction) time.Duration {
	d := r.stepTimeout
	if spec != nil && spec.Settings.TimeoutMs > 0 {
		d = time.Duration(spec.Settings.TimeoutMs) * time.Millisecond
	}
	if action.TimeoutMs > 0 {
		d = time.Duration(action.TimeoutMs) * time.Millisecond
	}
	return d
}
