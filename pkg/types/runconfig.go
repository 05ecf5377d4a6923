package types

// LoginConfig carries the credentials and target for a login-gated run.
type LoginConfig struct {
	// Options holds provider-specific login tuning (extra form fields,
	// post-login wait selectors).
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`

	// URL is the login page the engine navigates to before the run.
	URL string `json:"url" yaml:"url"`

	// Username is the account identifier submitted to the login form.
	Username string `json:"username" yaml:"username"`

	// Password is the secret submitted to the login form. Never logged.
	Password string `json:"password" yaml:"password"`

	// Tenant optionally selects an organization/workspace during login.
	Tenant string `json:"tenant,omitempty" yaml:"tenant,omitempty"`
}

// RunOptions tunes the browser context a run executes in.
type RunOptions struct {
	// TimeoutMs bounds a single step attempt in milliseconds when the
	// workflow's logic spec does not override it.
	TimeoutMs float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Headless launches the browser without a visible window.
	Headless bool `json:"headless,omitempty" yaml:"headless,omitempty"`
}

// RunConfig is the per-run input to the engine: authentication demands,
// variable bindings, and an optional logic spec override.
type RunConfig struct {
	// Variables seeds the run's binding map used for {{name}} substitution
	// and rule/loop evaluation. List-valued entries feed loops.
	Variables map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`

	// LoginConfig is required when RequiresLogin is true.
	LoginConfig *LoginConfig `json:"loginConfig,omitempty" yaml:"loginConfig,omitempty"`

	// LogicSpec overrides the workflow's stored logic spec when non-nil.
	LogicSpec *LogicSpec `json:"logicSpec,omitempty" yaml:"logicSpec,omitempty"`

	// Options tunes the browser context for this run.
	Options RunOptions `json:"options,omitempty" yaml:"options,omitempty"`

	// RequiresLogin gates the run behind the authentication sequence.
	// Login failure short-circuits the run with zero steps executed.
	RequiresLogin bool `json:"requiresLogin" yaml:"requiresLogin"`
}
