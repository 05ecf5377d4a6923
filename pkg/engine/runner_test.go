package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getvergo/vergo-agent/pkg/domainscope"
	"github.com/getvergo/vergo-agent/pkg/logging"
	"github.com/getvergo/vergo-agent/pkg/types"
)

// fakeDriver records every primitive call and fails scripted calls a set
// number of times before succeeding.
type fakeDriver struct {
	failRemaining map[string]int
	calls         []string
	url           string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{failRemaining: make(map[string]int)}
}

// failTimes scripts the next n invocations of the given call key to fail.
func (d *fakeDriver) failTimes(key string, n int) {
	d.failRemaining[key] = n
}

func (d *fakeDriver) do(key string) error {
	d.calls = append(d.calls, key)
	if d.failRemaining[key] > 0 {
		d.failRemaining[key]--
		return fmt.Errorf("scripted failure for %s", key)
	}
	return nil
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	if err := d.do("goto:" + url); err != nil {
		return err
	}
	d.url = url
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	return d.do("click:" + selector)
}

func (d *fakeDriver) Type(_ context.Context, selector, value string) error {
	return d.do("type:" + selector + "=" + value)
}

func (d *fakeDriver) Select(_ context.Context, selector, value string) error {
	return d.do("select:" + selector + "=" + value)
}

func (d *fakeDriver) Hover(_ context.Context, selector string) error {
	return d.do("hover:" + selector)
}

func (d *fakeDriver) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	return d.do("wait:" + selector)
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (d *fakeDriver) Download(_ context.Context, url string) ([]byte, error) {
	if err := d.do("download:" + url); err != nil {
		return nil, err
	}
	return []byte("file"), nil
}

func (d *fakeDriver) CurrentURL() string { return d.url }

type fakeWorkflowStore struct {
	workflows map[string]*types.Workflow
}

func (s *fakeWorkflowStore) FindWorkflow(_ context.Context, id string) (*types.Workflow, error) {
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", id, ErrWorkflowNotFound)
	}
	return w, nil
}

type fakeRunStore struct {
	createErr error
	stepErr   error
	updateErr error

	createCalls int
	steps       []types.StepResult
	updated     *types.RunResult
}

func (s *fakeRunStore) CreateRun(context.Context, string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.createCalls++
	return "run-1", nil
}

func (s *fakeRunStore) UpdateRun(_ context.Context, result *types.RunResult) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = result
	return nil
}

func (s *fakeRunStore) CreateStepRecord(_ context.Context, _ string, step types.StepResult) error {
	if s.stepErr != nil {
		return s.stepErr
	}
	s.steps = append(s.steps, step)
	return nil
}

type fakeLogin struct {
	err    error
	gotCfg *types.LoginConfig
	calls  int
}

func (l *fakeLogin) Login(_ context.Context, cfg *types.LoginConfig) error {
	l.calls++
	l.gotCfg = cfg
	return l.err
}

func simpleWorkflow() *types.Workflow {
	return &types.Workflow{
		ID:   "wf-1",
		Name: "simple",
		Actions: []types.WorkflowAction{
			{ID: "a1", Type: types.ActionGoto, URL: "https://app.getvergo.com/list", Order: 0},
			{ID: "a2", Type: types.ActionClick, Selector: "#open", Order: 1},
			{ID: "a3", Type: types.ActionTypeText, Selector: "#q", Value: "{{query}}", Order: 2},
		},
	}
}

// fastPolicy keeps retry waits negligible in tests.
var fastPolicy = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}

func newTestRunner(t *testing.T, w *types.Workflow, runs *fakeRunStore, opts ...Option) (*Runner, *fakeDriver) {
	t.Helper()
	workflows := &fakeWorkflowStore{workflows: map[string]*types.Workflow{}}
	if w != nil {
		workflows.workflows[w.ID] = w
	}
	opts = append([]Option{WithRetryPolicy(fastPolicy)}, opts...)
	r := NewRunner(workflows, runs, opts...)
	driver := newFakeDriver()
	require.NoError(t, r.Initialize(driver))
	return r, driver
}

func TestRunSuccess(t *testing.T) {
	runs := &fakeRunStore{}
	r, driver := newTestRunner(t, simpleWorkflow(), runs)

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		Variables: map[string]interface{}{"query": "invoices"},
	})

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.Equal(t, "run-1", result.RunID)
	assert.Empty(t, result.Error)
	require.Len(t, result.Steps, 3)
	for _, step := range result.Steps {
		assert.Equal(t, types.StepStatusSuccess, step.Status)
		assert.Equal(t, 1, step.Attempts)
		assert.Equal(t, -1, step.Iteration)
	}

	assert.Equal(t, []string{
		"goto:https://app.getvergo.com/list",
		"click:#open",
		"type:#q=invoices",
	}, driver.calls)

	assert.Equal(t, 3, result.Summary.TotalSteps)
	assert.Equal(t, 3, result.Summary.SuccessCount)
	assert.Len(t, runs.steps, 3)
	require.NotNil(t, runs.updated)
	assert.Equal(t, types.RunStatusSuccess, runs.updated.Status)
}

func TestRunDebugModeEnablesDebugLogging(t *testing.T) {
	logger, err := logging.NewLogger("engine-test")
	require.NoError(t, err)
	defer logger.Close()

	w := simpleWorkflow()
	w.LogicSpec = &types.LogicSpec{Settings: types.LogicSettings{DebugMode: true}}
	r, _ := newTestRunner(t, w, &fakeRunStore{}, WithLogger(logger))

	require.False(t, logger.DebugEnabled())
	result := r.Run(context.Background(), "wf-1", nil)

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.True(t, logger.DebugEnabled(), "debug mode in the logic settings enables debug logging")
}

func TestRunExecutesActionsInRecordedOrder(t *testing.T) {
	w := &types.Workflow{
		ID: "wf-order",
		Actions: []types.WorkflowAction{
			{ID: "third", Type: types.ActionClick, Selector: "#c", Order: 3},
			{ID: "first", Type: types.ActionClick, Selector: "#a", Order: 1},
			{ID: "second", Type: types.ActionClick, Selector: "#b", Order: 2},
		},
	}
	r, driver := newTestRunner(t, w, &fakeRunStore{})

	result := r.Run(context.Background(), "wf-order", nil)

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.Equal(t, []string{"click:#a", "click:#b", "click:#c"}, driver.calls)
}

func TestRunUnknownWorkflow(t *testing.T) {
	runs := &fakeRunStore{}
	r, _ := newTestRunner(t, nil, runs)

	result := r.Run(context.Background(), "missing", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "not found")
	assert.Empty(t, result.RunID)
	assert.Empty(t, result.Steps)
	// No run record is created for an unknown workflow.
	assert.Zero(t, runs.createCalls)
	assert.Nil(t, runs.updated)
}

func TestRunWithoutInitialize(t *testing.T) {
	workflows := &fakeWorkflowStore{workflows: map[string]*types.Workflow{"wf-1": simpleWorkflow()}}
	r := NewRunner(workflows, &fakeRunStore{})

	result := r.Run(context.Background(), "wf-1", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "not initialized")
}

func TestRunZeroActionWorkflowSucceeds(t *testing.T) {
	w := &types.Workflow{ID: "wf-empty"}
	r, driver := newTestRunner(t, w, &fakeRunStore{})

	result := r.Run(context.Background(), "wf-empty", nil)

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.Empty(t, result.Steps)
	assert.Empty(t, driver.calls)
}

func TestRunLoginFailureShortCircuits(t *testing.T) {
	runs := &fakeRunStore{}
	login := &fakeLogin{err: fmt.Errorf("credentials rejected")}
	r, driver := newTestRunner(t, simpleWorkflow(), runs, WithLoginExecutor(login))

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		RequiresLogin: true,
		LoginConfig: &types.LoginConfig{
			URL:      "https://app.getvergo.com/login",
			Username: "alice",
			Password: "s3cret",
		},
	})

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "Login failed")
	assert.Empty(t, result.Steps, "no step executes after a failed login")
	assert.Empty(t, driver.calls)
	assert.True(t, result.Metadata.LoginRequired)
	assert.False(t, result.Metadata.LoginSuccess)

	// The failed run is still persisted.
	require.NotNil(t, runs.updated)
	assert.Equal(t, types.RunStatusFailed, runs.updated.Status)
}

func TestRunLoginConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *types.LoginConfig
		wantErr string
	}{
		{"missing config", nil, "login config is missing"},
		{"missing url", &types.LoginConfig{Username: "a", Password: "b"}, "missing url"},
		{"missing username", &types.LoginConfig{URL: "https://x.com", Password: "b"}, "missing username"},
		{"missing password", &types.LoginConfig{URL: "https://x.com", Username: "a"}, "missing password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			login := &fakeLogin{}
			r, _ := newTestRunner(t, simpleWorkflow(), &fakeRunStore{}, WithLoginExecutor(login))

			result := r.Run(context.Background(), "wf-1", &types.RunConfig{
				RequiresLogin: true,
				LoginConfig:   tt.cfg,
			})

			assert.Equal(t, types.RunStatusFailed, result.Status)
			assert.Contains(t, result.Error, tt.wantErr)
			assert.Zero(t, login.calls, "executor must not run with an invalid config")
			assert.Empty(t, result.Steps)
		})
	}
}

func TestRunRequiresLoginWithoutExecutor(t *testing.T) {
	r, _ := newTestRunner(t, simpleWorkflow(), &fakeRunStore{})

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		RequiresLogin: true,
		LoginConfig: &types.LoginConfig{
			URL: "https://x.com", Username: "a", Password: "b",
		},
	})

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "no login executor")
}

func TestRunLoginSuccess(t *testing.T) {
	login := &fakeLogin{}
	r, _ := newTestRunner(t, simpleWorkflow(), &fakeRunStore{}, WithLoginExecutor(login))

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		RequiresLogin: true,
		LoginConfig: &types.LoginConfig{
			URL:      "https://app.getvergo.com/login",
			Username: "alice",
			Password: "s3cret",
		},
	})

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.True(t, result.Metadata.LoginSuccess)
	assert.Equal(t, 1, login.calls)
	require.NotNil(t, login.gotCfg)
	assert.Equal(t, "alice", login.gotCfg.Username)
}

func TestRunStepFailureDoesNotAbortRun(t *testing.T) {
	r, driver := newTestRunner(t, simpleWorkflow(), &fakeRunStore{})
	driver.failTimes("click:#open", 99)

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		Variables: map[string]interface{}{"query": "x"},
	})

	assert.Equal(t, types.RunStatusPartial, result.Status)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, types.StepStatusSuccess, result.Steps[0].Status)
	assert.Equal(t, types.StepStatusFailed, result.Steps[1].Status)
	assert.Equal(t, types.StepStatusSuccess, result.Steps[2].Status, "later steps still execute")
	assert.Contains(t, result.Steps[1].Error, "after 3 attempts")
	assert.Equal(t, 3, result.Steps[1].Attempts)
	assert.Equal(t, 1, result.Summary.FailureCount)
}

func TestRunRetrySucceedsOnThirdAttempt(t *testing.T) {
	r, driver := newTestRunner(t, simpleWorkflow(), &fakeRunStore{})
	driver.failTimes("click:#open", 2)

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		Variables: map[string]interface{}{"query": "x"},
	})

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.Equal(t, types.StepStatusSuccess, result.Steps[1].Status)
	assert.Equal(t, 3, result.Steps[1].Attempts)
}

func TestRunAllStepsFailed(t *testing.T) {
	w := &types.Workflow{
		ID: "wf-doomed",
		Actions: []types.WorkflowAction{
			{ID: "a1", Type: types.ActionClick, Selector: "#x", Order: 0, RetryCount: 1},
		},
	}
	r, driver := newTestRunner(t, w, &fakeRunStore{})
	driver.failTimes("click:#x", 99)

	result := r.Run(context.Background(), "wf-doomed", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Equal(t, 1, result.Steps[0].Attempts, "action retry override caps the budget")
}

func TestRunSkipRule(t *testing.T) {
	spec := &types.LogicSpec{
		Rules: []types.Rule{{
			ID:        "skip-open",
			Condition: types.Condition{Variable: "env", Operator: "eq", Value: "staging"},
			Action:    types.RuleAction{Type: types.RuleActionSkip},
			Enabled:   true,
		}},
	}
	r, driver := newTestRunner(t, simpleWorkflow(), &fakeRunStore{})

	result := r.Run(context.Background(), "wf-1", &types.RunConfig{
		Variables: map[string]interface{}{"env": "staging", "query": "x"},
		LogicSpec: spec,
	})

	// The skip rule matches every step in this workflow.
	assert.Equal(t, types.RunStatusSuccess, result.Status)
	require.Len(t, result.Steps, 3)
	for _, step := range result.Steps {
		assert.Equal(t, types.StepStatusSkipped, step.Status)
		assert.Zero(t, step.Attempts)
		require.Len(t, step.RuleResults, 1)
		assert.True(t, step.RuleResults[0].Matched)
	}
	assert.Empty(t, driver.calls)
	assert.Equal(t, 3, result.Summary.SkippedCount)
	assert.Equal(t, 3, result.Metadata.EvaluatedRules)
}

func TestRunRetryRuleExtendsBudget(t *testing.T) {
	spec := &types.LogicSpec{
		Rules: []types.Rule{{
			ID:        "extra-attempt",
			Condition: types.Condition{Variable: "flaky", Operator: "eq", Value: true},
			Action:    types.RuleAction{Type: types.RuleActionRetry},
			Enabled:   true,
		}},
	}
	w := &types.Workflow{
		ID: "wf-flaky",
		Actions: []types.WorkflowAction{
			{ID: "a1", Type: types.ActionClick, Selector: "#x", Order: 0},
		},
	}
	r, driver := newTestRunner(t, w, &fakeRunStore{},
		WithRetryPolicy(RetryPolicy{MaxAttempts: 1, Delay: time.Millisecond}))
	driver.failTimes("click:#x", 1)

	result := r.Run(context.Background(), "wf-flaky", &types.RunConfig{
		Variables: map[string]interface{}{"flaky": true},
		LogicSpec: spec,
	})

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.Equal(t, 2, result.Steps[0].Attempts)
}

func TestRunLoopBindsIterator(t *testing.T) {
	w := &types.Workflow{
		ID: "wf-loop",
		Actions: []types.WorkflowAction{
			{ID: "open", Type: types.ActionGoto, URL: "https://app.getvergo.com", Order: 0},
			{ID: "fill", Type: types.ActionTypeText, Selector: "#q", Value: "{{item}}", Order: 1},
		},
		LogicSpec: &types.LogicSpec{
			Loops: []types.Loop{{
				ID: "each-query", Variable: "queries", Iterator: "item", Actions: []string{"fill"},
			}},
		},
	}
	r, driver := newTestRunner(t, w, &fakeRunStore{})

	result := r.Run(context.Background(), "wf-loop", &types.RunConfig{
		Variables: map[string]interface{}{"queries": []string{"a", "b", "c"}},
	})

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	require.Len(t, result.Steps, 4)
	assert.Equal(t, []string{
		"goto:https://app.getvergo.com",
		"type:#q=a",
		"type:#q=b",
		"type:#q=c",
	}, driver.calls)

	for i, step := range result.Steps[1:] {
		assert.Equal(t, "each-query", step.LoopID)
		assert.Equal(t, i, step.Iteration)
	}
	require.Len(t, result.Metadata.LoopContexts, 1)
	assert.Equal(t, 3, result.Metadata.LoopContexts[0].Iterations)
}

func TestRunUnresolvedPlaceholderPassedVerbatim(t *testing.T) {
	r, driver := newTestRunner(t, simpleWorkflow(), &fakeRunStore{})

	result := r.Run(context.Background(), "wf-1", nil)

	assert.Equal(t, types.RunStatusSuccess, result.Status)
	assert.Contains(t, driver.calls, "type:#q={{query}}")
}

func TestRunDomainScopeDeniesNavigation(t *testing.T) {
	cfg, err := domainscope.ValidateConfig(map[string]interface{}{
		"baseDomain": "getvergo.com",
	})
	require.NoError(t, err)
	scope := domainscope.NewScope(cfg)

	w := &types.Workflow{
		ID: "wf-scope",
		Actions: []types.WorkflowAction{
			{ID: "inside", Type: types.ActionGoto, URL: "https://app.getvergo.com", Order: 0},
			{ID: "outside", Type: types.ActionGoto, URL: "https://evil.example.com", Order: 1},
			{ID: "after", Type: types.ActionClick, Selector: "#ok", Order: 2},
		},
	}
	r, driver := newTestRunner(t, w, &fakeRunStore{}, WithDomainScope(scope))

	result := r.Run(context.Background(), "wf-scope", nil)

	assert.Equal(t, types.RunStatusPartial, result.Status)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, types.StepStatusSuccess, result.Steps[0].Status)
	assert.Equal(t, types.StepStatusFailed, result.Steps[1].Status)
	assert.Contains(t, result.Steps[1].Error, "outside target system")
	assert.Zero(t, result.Steps[1].Attempts, "denied navigation never reaches the driver")
	assert.Equal(t, types.StepStatusSuccess, result.Steps[2].Status)

	assert.NotContains(t, driver.calls, "goto:https://evil.example.com")

	state := scope.RecordingState()
	assert.True(t, state.IsPaused)
	assert.Equal(t, "evil.example.com", state.CurrentDomain)
}

func TestRunCancelledContext(t *testing.T) {
	runs := &fakeRunStore{}
	r, driver := newTestRunner(t, simpleWorkflow(), runs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Run(ctx, "wf-1", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "run aborted")
	assert.Empty(t, result.Steps, "steps that never started produce no records")
	assert.Empty(t, driver.calls)
	require.NotNil(t, runs.updated)
}

func TestRunStepPersistenceFailure(t *testing.T) {
	runs := &fakeRunStore{stepErr: fmt.Errorf("disk full")}
	r, _ := newTestRunner(t, simpleWorkflow(), runs)

	result := r.Run(context.Background(), "wf-1", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "persist step records")
	// The in-memory step results still surface.
	assert.Len(t, result.Steps, 3)
}

func TestRunUpdatePersistenceFailure(t *testing.T) {
	runs := &fakeRunStore{updateErr: fmt.Errorf("db locked")}
	r, _ := newTestRunner(t, simpleWorkflow(), runs)

	result := r.Run(context.Background(), "wf-1", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "persist run result")
	assert.Len(t, result.Steps, 3)
}

func TestRunCreateRunFailure(t *testing.T) {
	runs := &fakeRunStore{createErr: fmt.Errorf("db gone")}
	r, driver := newTestRunner(t, simpleWorkflow(), runs)

	result := r.Run(context.Background(), "wf-1", nil)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "create run record")
	assert.Empty(t, driver.calls)
}

func TestRunnerCleanupIsIdempotent(t *testing.T) {
	r, _ := newTestRunner(t, simpleWorkflow(), &fakeRunStore{})
	r.Cleanup()
	r.Cleanup()

	result := r.Run(context.Background(), "wf-1", nil)
	assert.Equal(t, types.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "not initialized")
}

func TestRunnerInitializeRejectsNilDriver(t *testing.T) {
	r := NewRunner(&fakeWorkflowStore{}, &fakeRunStore{})
	assert.Error(t, r.Initialize(nil))
}
