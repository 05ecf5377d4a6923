package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getvergo/vergo-agent/pkg/types"
)

// Run executes the workflow under the given config and returns the
// aggregated result. It never returns an error: workflow-lookup, login,
// step, cancellation, and persistence failures are all encoded in the
// result's status, error, and metadata.
func (r *Runner) Run(ctx context.Context, workflowID string, cfg *types.RunConfig) *types.RunResult {
	result := &types.RunResult{
		WorkflowID: workflowID,
		Status:     types.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	if cfg == nil {
		cfg = &types.RunConfig{}
	}
	result.Metadata.LoginRequired = cfg.RequiresLogin

	if r.driver == nil {
		return r.abort(result, "runner is not initialized: call Initialize before Run")
	}

	workflow, err := r.workflows.FindWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, ErrWorkflowNotFound) {
			// No run record is created for an unknown workflow.
			return r.abortUnpersisted(result, fmt.Sprintf("workflow %q not found", workflowID))
		}
		return r.abortUnpersisted(result, fmt.Sprintf("failed to load workflow %q: %v", workflowID, err))
	}

	runID, err := r.runs.CreateRun(ctx, workflowID)
	if err != nil {
		return r.abortUnpersisted(result, fmt.Sprintf("failed to create run record: %v", err))
	}
	result.RunID = runID
	r.log.Infof("run %s: starting workflow %q (%d actions)", runID, workflowID, len(workflow.Actions))

	if cfg.RequiresLogin {
		if err := r.authenticate(ctx, cfg); err != nil {
			r.log.Errorf("run %s: login failed: %v", runID, err)
			return r.abort(result, fmt.Sprintf("Login failed: %v", err))
		}
		result.Metadata.LoginSuccess = true
		r.observeNavigation(r.driver.CurrentURL())
	}

	spec := effectiveSpec(workflow, cfg)
	if spec != nil && spec.Settings.DebugMode {
		r.log.SetDebug(true)
	}
	bindings := Bindings(cfg.Variables)
	instances, loopContexts := ExpandSteps(orderedActions(workflow), spec, bindings)
	result.Metadata.LoopContexts = loopContexts
	r.log.Debugf("run %s: expanded %d actions into %d step instances", runID, len(workflow.Actions), len(instances))

	var persistErr error
	for _, inst := range instances {
		if ctx.Err() != nil {
			// Cooperative cancellation: steps that never started produce
			// no records.
			result.Error = fmt.Sprintf("run aborted: %v", ctx.Err())
			break
		}

		step := r.executeInstance(ctx, spec, inst, runID, &result.Metadata)
		result.Steps = append(result.Steps, step)

		if err := r.runs.CreateStepRecord(ctx, runID, step); err != nil && persistErr == nil {
			persistErr = err
			r.log.Errorf("run %s: failed to persist step %s: %v", runID, step.ActionID, err)
		}
	}

	result.Finalize()
	if result.Error != "" {
		// Cancellation observed mid-run overrides the aggregate status.
		result.Status = types.RunStatusFailed
	}
	if persistErr != nil {
		result.Status = types.RunStatusFailed
		result.Error = fmt.Sprintf("failed to persist step records: %v", persistErr)
	}

	if err := r.runs.UpdateRun(ctx, result); err != nil {
		// Surface the in-memory result even when the final write fails.
		result.Status = types.RunStatusFailed
		result.Error = fmt.Sprintf("failed to persist run result: %v", err)
	}
	r.log.Infof("run %s: finished with status %s (%d/%d steps succeeded)",
		runID, result.Status, result.Summary.SuccessCount, result.Summary.TotalSteps)
	return result
}

// authenticate validates the login config and performs the authentication
// sequence under the login timeout. Any failure short-circuits the run.
func (r *Runner) authenticate(ctx context.Context, cfg *types.RunConfig) error {
	lc := cfg.LoginConfig
	switch {
	case lc == nil:
		return fmt.Errorf("login config is missing")
	case strings.TrimSpace(lc.URL) == "":
		return fmt.Errorf("login config is missing url")
	case strings.TrimSpace(lc.Username) == "":
		return fmt.Errorf("login config is missing username")
	case lc.Password == "":
		return fmt.Errorf("login config is missing password")
	}
	if r.login == nil {
		return fmt.Errorf("no login executor configured")
	}

	loginCtx, cancel := context.WithTimeout(ctx, r.loginTimeout)
	defer cancel()
	return r.login.Login(loginCtx, lc)
}

// executeInstance runs one expanded step instance to a terminal status:
// rule evaluation, placeholder resolution, domain-scope guarding, and the
// retry loop around the browser primitive.
func (r *Runner) executeInstance(ctx context.Context, spec *types.LogicSpec, inst StepInstance, runID string, meta *types.RunMetadata) types.StepResult {
	step := types.StepResult{
		ActionID:  inst.Action.ID,
		LoopID:    inst.LoopID,
		Iteration: inst.Iteration,
		StartedAt: time.Now(),
	}

	var decision RuleDecision
	if spec != nil {
		decision = EvaluateRules(spec.Rules, inst.Bindings)
		step.RuleResults = decision.Traces
		meta.EvaluatedRules += len(decision.Traces)
	}

	if decision.Skip {
		r.log.Infof("run %s: skipping action %s (skip rule matched)", runID, inst.Action.ID)
		step.Status = types.StepStatusSkipped
		step.FinishedAt = time.Now()
		return step
	}

	if decision.WaitMs > 0 {
		r.sleep(ctx, time.Duration(decision.WaitMs)*time.Millisecond)
	}

	action := resolveAction(inst.Action, inst.Bindings)
	// Resolved values stay out of debug output: they may carry credentials.
	r.log.Debugf("run %s: executing %s (type %s, selector %q, url %q, iteration %d)",
		runID, action.ID, action.Type, action.Selector, action.URL, inst.Iteration)

	if domain, denied := r.guardNavigation(action); denied {
		r.log.Warnf("run %s: action %s denied by domain scope (%s)", runID, action.ID, domain)
		step.Status = types.StepStatusFailed
		step.Error = fmt.Sprintf("navigation to %q is outside target system", domain)
		step.FinishedAt = time.Now()
		return step
	}

	policy := r.effectiveRetry(spec, inst.Action).Extend(decision.ExtraAttempts)
	timeout := r.effectiveTimeout(spec, inst.Action)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := policy.Wait(ctx, attempt); err != nil {
			lastErr = err
			break
		}

		step.Attempts = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = r.executePrimitive(attemptCtx, action, timeout)
		cancel()

		if lastErr == nil {
			step.Status = types.StepStatusSuccess
			step.FinishedAt = time.Now()
			return step
		}
		r.log.Warnf("run %s: action %s attempt %d/%d failed: %v",
			runID, action.ID, attempt, policy.MaxAttempts, lastErr)
		if ctx.Err() != nil {
			break
		}
	}

	step.Status = types.StepStatusFailed
	step.Error = fmt.Sprintf("action %s failed after %d attempts: %v", action.ID, step.Attempts, lastErr)
	step.FinishedAt = time.Now()

	if spec != nil && spec.Settings.ScreenshotOnError {
		step.ScreenshotPath = r.captureFailureScreenshot(ctx, runID, &step)
	}
	return step
}

// executePrimitive dispatches one resolved action to the bound driver.
func (r *Runner) executePrimitive(ctx context.Context, action types.WorkflowAction, timeout time.Duration) error {
	switch action.Type {
	case types.ActionGoto:
		return r.driver.Navigate(ctx, action.URL)
	case types.ActionClick:
		return r.driver.Click(ctx, action.Selector)
	case types.ActionTypeText:
		return r.driver.Type(ctx, action.Selector, action.Value)
	case types.ActionSelect:
		return r.driver.Select(ctx, action.Selector, action.Value)
	case types.ActionHover:
		return r.driver.Hover(ctx, action.Selector)
	case types.ActionWaitForSelector:
		return r.driver.WaitForSelector(ctx, action.Selector, timeout)
	case types.ActionDownload:
		_, err := r.driver.Download(ctx, action.URL)
		return err
	default:
		return fmt.Errorf("unsupported action type %q", action.Type)
	}
}

// guardNavigation records a navigation action against the domain scope.
// It reports denied=true when the scope classifies the target as outside the
// system, in which case the step must fail without executing.
func (r *Runner) guardNavigation(action types.WorkflowAction) (domain string, denied bool) {
	if r.scope == nil || (action.Type != types.ActionGoto && action.Type != types.ActionDownload) {
		return "", false
	}
	event := r.scope.RecordNavigation(action.URL)
	return event.Domain, !event.Allowed
}

// observeNavigation records a URL against the scope without judging it;
// used for navigations the engine did not initiate itself (post-login
// location, driver-side redirects).
func (r *Runner) observeNavigation(url string) {
	if r.scope == nil || url == "" {
		return
	}
	r.scope.RecordNavigation(url)
}

// resolveAction substitutes {{name}} placeholders in the action's selector,
// value, and URL against the instance bindings.
func resolveAction(a types.WorkflowAction, b Bindings) types.WorkflowAction {
	a.Selector = Resolve(a.Selector, b)
	a.Value = Resolve(a.Value, b)
	a.URL = Resolve(a.URL, b)
	return a
}

// captureFailureScreenshot best-effort captures the page after a step
// exhausts its retries and writes it under ~/.vergo/screenshots.
func (r *Runner) captureFailureScreenshot(ctx context.Context, runID string, step *types.StepResult) string {
	shotCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := r.driver.Screenshot(shotCtx)
	if err != nil {
		r.log.Warnf("run %s: failure screenshot for %s failed: %v", runID, step.ActionID, err)
		return ""
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".vergo", "screenshots")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s-%d.png", runID, step.ActionID, step.Iteration))
	if err := os.WriteFile(path, data, 0600); err != nil {
		r.log.Warnf("run %s: writing screenshot failed: %v", runID, err)
		return ""
	}
	return path
}

// sleep blocks for d or until the context is canceled.
func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// abort finalizes a failed run, persisting the record when one was created.
func (r *Runner) abort(result *types.RunResult, msg string) *types.RunResult {
	result.Status = types.RunStatusFailed
	result.Error = msg
	result.FinishedAt = time.Now()
	if result.RunID != "" {
		if err := r.runs.UpdateRun(context.Background(), result); err != nil {
			r.log.Errorf("run %s: failed to persist aborted run: %v", result.RunID, err)
		}
	}
	return result
}

// abortUnpersisted finalizes a failed run for which no run record exists.
func (r *Runner) abortUnpersisted(result *types.RunResult, msg string) *types.RunResult {
	result.Status = types.RunStatusFailed
	result.Error = msg
	result.FinishedAt = time.Now()
	return result
}
