package types

// ActionType defines the browser primitive a workflow action maps to.
type ActionType string

const (
	ActionGoto            ActionType = "goto"            // ActionGoto navigates the page to a URL.
	ActionClick           ActionType = "click"           // ActionClick clicks the element matching the selector.
	ActionTypeText        ActionType = "type"            // ActionTypeText types a value into the element matching the selector.
	ActionSelect          ActionType = "select"          // ActionSelect selects an option in a select element.
	ActionHover           ActionType = "hover"           // ActionHover hovers the element matching the selector.
	ActionWaitForSelector ActionType = "waitForSelector" // ActionWaitForSelector waits until the selector is present.
	ActionDownload        ActionType = "download"        // ActionDownload triggers and captures a file download.
)

// ValidActionTypes lists every action type the engine can execute.
var ValidActionTypes = map[ActionType]bool{
	ActionGoto:            true,
	ActionClick:           true,
	ActionTypeText:        true,
	ActionSelect:          true,
	ActionHover:           true,
	ActionWaitForSelector: true,
	ActionDownload:        true,
}

// WorkflowAction is a single recorded interaction inside a workflow.
// Actions are immutable once persisted and are referenced by ID from loops.
type WorkflowAction struct {
	// Metadata holds optional recorder-supplied information about the action.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// ID uniquely identifies the action within its workflow.
	ID string `json:"id" yaml:"id"`

	// Type selects the browser primitive to execute.
	Type ActionType `json:"type" yaml:"type"`

	// Selector is the CSS selector the primitive targets. Empty for goto.
	// May contain {{name}} placeholders resolved at execution time.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Value is the input value for type/select actions.
	// May contain {{name}} placeholders resolved at execution time.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// URL is the navigation target for goto/download actions.
	// May contain {{name}} placeholders resolved at execution time.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Dependencies lists action IDs that must have executed before this one.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Order is the position of the action in the recorded sequence.
	Order int `json:"order" yaml:"order"`

	// TimeoutMs bounds a single attempt of the action, in milliseconds.
	// Zero means the engine default applies.
	TimeoutMs float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RetryCount overrides the engine's default retry budget when positive.
	RetryCount int `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
}

// Workflow is an ordered recorded action sequence with an optional logic layer.
type Workflow struct {
	// Metadata holds optional recorder-supplied information about the workflow.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// LogicSpec is the optional declarative rule/loop layer. Nil means the
	// engine executes the flat action list.
	LogicSpec *LogicSpec `json:"logicSpec,omitempty" yaml:"logicSpec,omitempty"`

	// ID uniquely identifies the workflow.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable workflow name.
	Name string `json:"name" yaml:"name"`

	// Actions is the recorded sequence, ordered by Order ascending.
	Actions []WorkflowAction `json:"actions" yaml:"actions"`
}
