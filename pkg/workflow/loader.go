// Package workflow loads and validates workflow definitions from YAML files
// and seeds them into the persistence layer.
package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/getvergo/vergo-agent/pkg/types"
)

// LoadFile reads and validates a workflow definition from a YAML file.
func LoadFile(path string) (*types.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML workflow definition.
func Parse(data []byte) (*types.Workflow, error) {
	var w types.Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	if err := Validate(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks a workflow definition's internal consistency: identifiers,
// action types, and every cross-reference from loops, rules, and
// dependencies.
func Validate(w *types.Workflow) error {
	if w.ID == "" {
		return fmt.Errorf("workflow is missing an id")
	}
	if len(w.Actions) == 0 {
		// A zero-action workflow is legal; it runs to an empty success.
		return validateLogicSpec(w.LogicSpec, nil)
	}

	ids := make(map[string]bool, len(w.Actions))
	for i, a := range w.Actions {
		if a.ID == "" {
			return fmt.Errorf("action %d is missing an id", i)
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate action id %q", a.ID)
		}
		ids[a.ID] = true

		if !types.ValidActionTypes[a.Type] {
			return fmt.Errorf("action %q has unknown type %q", a.ID, a.Type)
		}
		switch a.Type {
		case types.ActionGoto, types.ActionDownload:
			if a.URL == "" {
				return fmt.Errorf("action %q (%s) is missing a url", a.ID, a.Type)
			}
		default:
			if a.Selector == "" {
				return fmt.Errorf("action %q (%s) is missing a selector", a.ID, a.Type)
			}
		}
	}

	for _, a := range w.Actions {
		for _, dep := range a.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("action %q depends on unknown action %q", a.ID, dep)
			}
		}
	}

	return validateLogicSpec(w.LogicSpec, ids)
}

// validateLogicSpec checks rule and loop declarations against the action set.
func validateLogicSpec(spec *types.LogicSpec, actionIDs map[string]bool) error {
	if spec == nil {
		return nil
	}

	ruleIDs := make(map[string]bool, len(spec.Rules))
	for i, r := range spec.Rules {
		if r.ID == "" {
			return fmt.Errorf("rule %d is missing an id", i)
		}
		if ruleIDs[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		ruleIDs[r.ID] = true
		if r.Condition.Variable == "" {
			return fmt.Errorf("rule %q has no condition variable", r.ID)
		}
		switch r.Action.Type {
		case types.RuleActionSkip, types.RuleActionRetry, types.RuleActionWait:
		default:
			return fmt.Errorf("rule %q has unknown action type %q", r.ID, r.Action.Type)
		}
	}

	loopIDs := make(map[string]bool, len(spec.Loops))
	for i, l := range spec.Loops {
		if l.ID == "" {
			return fmt.Errorf("loop %d is missing an id", i)
		}
		if loopIDs[l.ID] {
			return fmt.Errorf("duplicate loop id %q", l.ID)
		}
		loopIDs[l.ID] = true
		if l.Variable == "" || l.Iterator == "" {
			return fmt.Errorf("loop %q must name a variable and an iterator", l.ID)
		}
		if len(l.Actions) == 0 {
			return fmt.Errorf("loop %q references no actions", l.ID)
		}
		for _, id := range l.Actions {
			if !actionIDs[id] {
				return fmt.Errorf("loop %q references unknown action %q", l.ID, id)
			}
		}
	}
	return nil
}
