package types

import "time"

// RunStatus is the terminal (or in-flight) state of a workflow run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running" // RunStatusRunning indicates the run is still executing.
	RunStatusSuccess RunStatus = "success" // RunStatusSuccess indicates every non-skipped step succeeded.
	RunStatusPartial RunStatus = "partial" // RunStatusPartial indicates a mix of succeeded and failed steps.
	RunStatusFailed  RunStatus = "failed"  // RunStatusFailed indicates the run produced no successful step, or failed before any step ran.
)

// StepStatus is the terminal state of a single step instance.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success" // StepStatusSuccess indicates the step's primitive completed.
	StepStatusFailed  StepStatus = "failed"  // StepStatusFailed indicates the step exhausted its retry budget.
	StepStatusSkipped StepStatus = "skipped" // StepStatusSkipped indicates a skip rule matched; the step never executed.
)

// RuleTrace records the outcome of evaluating one rule against a step.
type RuleTrace struct {
	// RuleID identifies the evaluated rule.
	RuleID string `json:"ruleId"`

	// Action is the rule's action type.
	Action RuleActionType `json:"action"`

	// Matched reports whether the rule's condition held.
	Matched bool `json:"matched"`
}

// StepResult is the record of one executed (or skipped) step instance,
// including loop-expanded duplicates of the same action.
type StepResult struct {
	// StartedAt is when the step instance began (rule evaluation included).
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt is when the step instance reached a terminal status.
	FinishedAt time.Time `json:"finishedAt"`

	// ActionID identifies the workflow action this instance executed.
	ActionID string `json:"actionId"`

	// LoopID identifies the loop this instance belongs to, if any.
	LoopID string `json:"loopId,omitempty"`

	// Error holds the final attempt's error message for failed steps.
	Error string `json:"error,omitempty"`

	// ScreenshotPath points at the failure screenshot, when one was
	// captured.
	ScreenshotPath string `json:"screenshotPath,omitempty"`

	// RuleResults traces the rules evaluated for this step.
	RuleResults []RuleTrace `json:"ruleResults,omitempty"`

	// Status is the terminal state of the instance.
	Status StepStatus `json:"status"`

	// Attempts counts execution attempts, including the successful one.
	// Zero for skipped steps.
	Attempts int `json:"attempts"`

	// Iteration is the zero-based loop iteration index, -1 outside loops.
	Iteration int `json:"iteration"`
}

// RunSummary aggregates step counts for a finished run.
type RunSummary struct {
	// TotalSteps counts every step instance, skipped included.
	TotalSteps int `json:"totalSteps"`

	// SuccessCount counts instances that reached StepStatusSuccess.
	SuccessCount int `json:"successCount"`

	// FailureCount counts instances that reached StepStatusFailed.
	FailureCount int `json:"failureCount"`

	// SkippedCount counts instances that reached StepStatusSkipped.
	SkippedCount int `json:"skippedCount"`
}

// LoopContext reports how one declared loop actually ran.
type LoopContext struct {
	// LoopID identifies the loop.
	LoopID string `json:"loopId"`

	// Iterations is the number of iterations that expanded.
	Iterations int `json:"iterations"`

	// BrokeEarly reports whether the break condition stopped the loop
	// before its source list was exhausted.
	BrokeEarly bool `json:"brokeEarly"`
}

// RunMetadata carries diagnostic information about a finished run.
type RunMetadata struct {
	// LoopContexts reports which loops ran and for how many iterations.
	LoopContexts []LoopContext `json:"loopContexts,omitempty"`

	// EvaluatedRules counts rule evaluations performed across all steps.
	EvaluatedRules int `json:"evaluatedRules"`

	// LoginRequired reports whether the run config demanded authentication.
	LoginRequired bool `json:"loginRequired"`

	// LoginSuccess reports whether authentication succeeded. Meaningful only
	// when LoginRequired is true.
	LoginSuccess bool `json:"loginSuccess"`
}

// RunResult is the aggregated outcome of one workflow run. It is created at
// run start as running and finalized exactly once; immutable thereafter.
type RunResult struct {
	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt is when the run reached a terminal status.
	FinishedAt time.Time `json:"finishedAt"`

	// Metadata carries login/rule/loop diagnostics.
	Metadata RunMetadata `json:"metadata"`

	// RunID uniquely identifies the run.
	RunID string `json:"runId"`

	// WorkflowID identifies the executed workflow.
	WorkflowID string `json:"workflowId"`

	// Error describes a run-level failure (lookup, login, persistence,
	// timeout). Empty for successful runs.
	Error string `json:"error,omitempty"`

	// Steps lists one result per executed or skipped step instance, in
	// execution order.
	Steps []StepResult `json:"steps"`

	// Summary aggregates the step counts.
	Summary RunSummary `json:"summary"`

	// Status is the run's terminal state.
	Status RunStatus `json:"status"`
}

// Finalize computes the run's terminal status from its step results.
// Success requires zero failures; a mix of successes and failures is partial;
// everything else (including an all-failed or all-skipped-after-error run) is
// failed unless no step failed at all.
func (r *RunResult) Finalize() {
	r.Summary = RunSummary{TotalSteps: len(r.Steps)}
	for _, s := range r.Steps {
		switch s.Status {
		case StepStatusSuccess:
			r.Summary.SuccessCount++
		case StepStatusFailed:
			r.Summary.FailureCount++
		case StepStatusSkipped:
			r.Summary.SkippedCount++
		}
	}

	switch {
	case r.Summary.FailureCount == 0:
		r.Status = RunStatusSuccess
	case r.Summary.SuccessCount > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusFailed
	}
	r.FinishedAt = time.Now()
}
