package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getvergo/vergo-agent/pkg/types"
)

const validYAML = `
id: invoice-export
name: Export monthly invoices
actions:
  - id: open
    type: goto
    url: https://app.getvergo.com/invoices
    order: 0
  - id: search
    type: type
    selector: "#q"
    value: "{{month}}"
    order: 1
  - id: download
    type: download
    url: https://app.getvergo.com/invoices/{{month}}.csv
    order: 2
    dependencies: [search]
logicSpec:
  settings:
    retryAttempts: 2
    screenshotOnError: true
  rules:
    - id: skip-on-empty
      condition:
        variable: month
        operator: eq
        value: ""
      action:
        type: skip
      enabled: true
  loops:
    - id: each-month
      variable: months
      iterator: month
      actions: [search, download]
`

func TestParseValidWorkflow(t *testing.T) {
	w, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "invoice-export", w.ID)
	assert.Equal(t, "Export monthly invoices", w.Name)
	require.Len(t, w.Actions, 3)
	assert.Equal(t, types.ActionGoto, w.Actions[0].Type)
	assert.Equal(t, "{{month}}", w.Actions[1].Value)
	assert.Equal(t, []string{"search"}, w.Actions[2].Dependencies)

	require.NotNil(t, w.LogicSpec)
	assert.Equal(t, 2, w.LogicSpec.Settings.RetryAttempts)
	assert.True(t, w.LogicSpec.Settings.ScreenshotOnError)
	require.Len(t, w.LogicSpec.Rules, 1)
	assert.Equal(t, types.RuleActionSkip, w.LogicSpec.Rules[0].Action.Type)
	require.Len(t, w.LogicSpec.Loops, 1)
	assert.Equal(t, []string{"search", "download"}, w.LogicSpec.Loops[0].Actions)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("id: [unbalanced"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding workflow")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0600))

	w, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "invoice-export", w.ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading workflow file")
}

func TestValidate(t *testing.T) {
	goodAction := types.WorkflowAction{ID: "a1", Type: types.ActionClick, Selector: "#x"}

	tests := []struct {
		name    string
		w       *types.Workflow
		wantErr string
	}{
		{
			name:    "missing workflow id",
			w:       &types.Workflow{},
			wantErr: "missing an id",
		},
		{
			name: "zero actions is legal",
			w:    &types.Workflow{ID: "wf"},
		},
		{
			name: "action missing id",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{
				{Type: types.ActionClick, Selector: "#x"},
			}},
			wantErr: "action 0 is missing an id",
		},
		{
			name: "duplicate action id",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{
				goodAction, goodAction,
			}},
			wantErr: "duplicate action id",
		},
		{
			name: "unknown action type",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{
				{ID: "a1", Type: "scroll", Selector: "#x"},
			}},
			wantErr: `unknown type "scroll"`,
		},
		{
			name: "goto without url",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{
				{ID: "a1", Type: types.ActionGoto},
			}},
			wantErr: "missing a url",
		},
		{
			name: "click without selector",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{
				{ID: "a1", Type: types.ActionClick},
			}},
			wantErr: "missing a selector",
		},
		{
			name: "dependency on unknown action",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{
				{ID: "a1", Type: types.ActionClick, Selector: "#x", Dependencies: []string{"ghost"}},
			}},
			wantErr: `depends on unknown action "ghost"`,
		},
		{
			name: "rule without condition variable",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{Rules: []types.Rule{
					{ID: "r1", Action: types.RuleAction{Type: types.RuleActionSkip}},
				}}},
			wantErr: "no condition variable",
		},
		{
			name: "rule with unknown action type",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{Rules: []types.Rule{
					{ID: "r1", Condition: types.Condition{Variable: "x"},
						Action: types.RuleAction{Type: "explode"}},
				}}},
			wantErr: `unknown action type "explode"`,
		},
		{
			name: "duplicate rule id",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{Rules: []types.Rule{
					{ID: "r1", Condition: types.Condition{Variable: "x"},
						Action: types.RuleAction{Type: types.RuleActionSkip}},
					{ID: "r1", Condition: types.Condition{Variable: "y"},
						Action: types.RuleAction{Type: types.RuleActionSkip}},
				}}},
			wantErr: "duplicate rule id",
		},
		{
			name: "loop referencing unknown action",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{Loops: []types.Loop{
					{ID: "l1", Variable: "items", Iterator: "it", Actions: []string{"ghost"}},
				}}},
			wantErr: `references unknown action "ghost"`,
		},
		{
			name: "loop without iterator",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{Loops: []types.Loop{
					{ID: "l1", Variable: "items", Actions: []string{"a1"}},
				}}},
			wantErr: "must name a variable and an iterator",
		},
		{
			name: "loop without actions",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{Loops: []types.Loop{
					{ID: "l1", Variable: "items", Iterator: "it"},
				}}},
			wantErr: "references no actions",
		},
		{
			name: "valid with logic spec",
			w: &types.Workflow{ID: "wf", Actions: []types.WorkflowAction{goodAction},
				LogicSpec: &types.LogicSpec{
					Rules: []types.Rule{{ID: "r1", Condition: types.Condition{Variable: "x"},
						Action: types.RuleAction{Type: types.RuleActionWait, Value: 100}}},
					Loops: []types.Loop{{ID: "l1", Variable: "items", Iterator: "it", Actions: []string{"a1"}}},
				}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.w)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateZeroActionsWithLoopFails(t *testing.T) {
	w := &types.Workflow{
		ID: "wf",
		LogicSpec: &types.LogicSpec{Loops: []types.Loop{
			{ID: "l1", Variable: "items", Iterator: "it", Actions: []string{"a1"}},
		}},
	}
	err := Validate(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}
