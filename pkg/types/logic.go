package types

// RuleActionType defines what a matching rule does to the step it guards.
type RuleActionType string

const (
	RuleActionSkip  RuleActionType = "skip"  // RuleActionSkip marks the step skipped without executing it.
	RuleActionRetry RuleActionType = "retry" // RuleActionRetry extends the step's retry budget by one attempt.
	RuleActionWait  RuleActionType = "wait"  // RuleActionWait delays the step by the rule's value in milliseconds.
)

// Condition is a declarative {variable, operator, value} predicate evaluated
// against the run's variable bindings before a step executes.
type Condition struct {
	// Variable names the binding the condition reads.
	Variable string `json:"variable" yaml:"variable"`

	// Operator is the comparison to apply: eq, neq, gt, lt, gte, lte, contains.
	// Unknown operators evaluate to false.
	Operator string `json:"operator" yaml:"operator"`

	// Value is the right-hand side the binding is compared against.
	Value interface{} `json:"value" yaml:"value"`
}

// RuleAction describes the effect a matched rule applies to its step.
type RuleAction struct {
	// Type selects skip, retry, or wait behavior.
	Type RuleActionType `json:"type" yaml:"type"`

	// Value carries the wait delay in milliseconds for wait actions.
	Value float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// Rule is a condition/action pair attached to a workflow's logic layer.
// Rules are evaluated per step in ascending Priority order.
type Rule struct {
	// ID uniquely identifies the rule within the logic spec.
	ID string `json:"id" yaml:"id"`

	// Condition must hold for the rule's action to apply.
	Condition Condition `json:"condition" yaml:"condition"`

	// Action is applied to the step when the condition holds.
	Action RuleAction `json:"action" yaml:"action"`

	// Priority orders rule evaluation; lower values evaluate first.
	Priority int `json:"priority" yaml:"priority"`

	// Enabled toggles the rule without removing it from the spec.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Loop declares a repetition of a subset of workflow actions over the
// elements of a list-valued variable binding.
type Loop struct {
	// BreakCondition, when present, is re-evaluated after each iteration and
	// stops further expansion of the loop when it holds.
	BreakCondition *Condition `json:"breakCondition,omitempty" yaml:"breakCondition,omitempty"`

	// ID uniquely identifies the loop within the logic spec.
	ID string `json:"id" yaml:"id"`

	// Variable names the list-valued binding the loop iterates over.
	Variable string `json:"variable" yaml:"variable"`

	// Iterator names the binding that carries the current element inside
	// each iteration.
	Iterator string `json:"iterator" yaml:"iterator"`

	// Actions lists the workflow action IDs repeated per iteration.
	Actions []string `json:"actions" yaml:"actions"`

	// MaxIterations caps the number of iterations when positive.
	MaxIterations int `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
}

// LogicSettings carries engine tuning attached to a logic spec.
type LogicSettings struct {
	// TimeoutMs is the default per-attempt timeout in milliseconds.
	TimeoutMs float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RetryAttempts is the default retry budget per step.
	RetryAttempts int `json:"retryAttempts,omitempty" yaml:"retryAttempts,omitempty"`

	// ScreenshotOnError captures a screenshot when a step exhausts retries.
	ScreenshotOnError bool `json:"screenshotOnError,omitempty" yaml:"screenshotOnError,omitempty"`

	// DebugMode enables verbose step logging.
	DebugMode bool `json:"debugMode,omitempty" yaml:"debugMode,omitempty"`
}

// LogicSpec is the compiled declarative rule/loop specification attached to a
// workflow. Its production is outside this engine; the engine only consumes it.
type LogicSpec struct {
	// Settings tunes engine behavior for this workflow.
	Settings LogicSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Rules guard individual steps; evaluated in ascending priority.
	Rules []Rule `json:"rules,omitempty" yaml:"rules,omitempty"`

	// Loops expand subsets of the action list over list-valued bindings.
	Loops []Loop `json:"loops,omitempty" yaml:"loops,omitempty"`
}
