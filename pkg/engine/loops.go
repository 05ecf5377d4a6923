package engine

import (
	"github.com/getvergo/vergo-agent/pkg/types"
)

// StepInstance is one concrete, ordered unit of execution produced by
// expanding a workflow's action list under its logic spec. Loop-expanded
// instances carry a per-iteration binding overlay; flat instances carry the
// run bindings unchanged.
type StepInstance struct {
	// Bindings is the variable map the instance resolves against.
	Bindings Bindings

	// Action is the workflow action to execute.
	Action types.WorkflowAction

	// LoopID identifies the loop the instance belongs to, empty outside
	// loops.
	LoopID string

	// Iteration is the zero-based loop iteration index, -1 outside loops.
	Iteration int
}

// ExpandSteps flattens a workflow's actions into the concrete instance
// sequence a run executes.
//
// Actions not referenced by any loop appear exactly once, in declared order.
// A loop expands, at the position of the first action it references, into one
// pass over its referenced actions per element of its list-valued source
// binding. Each pass layers the loop's iterator name over the base bindings.
// A break condition is re-evaluated after each completed pass and stops
// further expansion without marking the loop failed; MaxIterations caps the
// pass count when positive.
//
// A loop whose source binding is missing or not list-valued expands to zero
// instances.
func ExpandSteps(actions []types.WorkflowAction, spec *types.LogicSpec, base Bindings) ([]StepInstance, []types.LoopContext) {
	if spec == nil || len(spec.Loops) == 0 {
		out := make([]StepInstance, 0, len(actions))
		for _, a := range actions {
			out = append(out, StepInstance{Action: a, Bindings: base, Iteration: -1})
		}
		return out, nil
	}

	// Index loop membership: action id -> owning loop, and each loop's
	// anchor (the first referenced action in declared order).
	looped := make(map[string]*types.Loop)
	for i := range spec.Loops {
		loop := &spec.Loops[i]
		for _, id := range loop.Actions {
			if _, taken := looped[id]; !taken {
				looped[id] = loop
			}
		}
	}

	byID := make(map[string]types.WorkflowAction, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	var instances []StepInstance
	var contexts []types.LoopContext
	expanded := make(map[string]bool)

	for _, a := range actions {
		loop, inLoop := looped[a.ID]
		if !inLoop {
			instances = append(instances, StepInstance{Action: a, Bindings: base, Iteration: -1})
			continue
		}
		if expanded[loop.ID] {
			continue
		}
		expanded[loop.ID] = true

		steps, ctx := expandLoop(loop, byID, base)
		instances = append(instances, steps...)
		contexts = append(contexts, ctx)
	}
	return instances, contexts
}

// expandLoop produces the instance sequence for one loop.
func expandLoop(loop *types.Loop, byID map[string]types.WorkflowAction, base Bindings) ([]StepInstance, types.LoopContext) {
	ctx := types.LoopContext{LoopID: loop.ID}

	items := listValue(base, loop.Variable)
	var out []StepInstance
	for i, item := range items {
		if loop.MaxIterations > 0 && i >= loop.MaxIterations {
			break
		}

		iterBindings := base.With(loop.Iterator, item)
		for _, id := range loop.Actions {
			action, ok := byID[id]
			if !ok {
				continue
			}
			out = append(out, StepInstance{
				Action:    action,
				Bindings:  iterBindings,
				LoopID:    loop.ID,
				Iteration: i,
			})
		}
		ctx.Iterations++

		if loop.BreakCondition != nil && EvaluateCondition(*loop.BreakCondition, iterBindings) {
			ctx.BrokeEarly = i < len(items)-1
			break
		}
	}
	return out, ctx
}

// listValue reads a list-valued binding, coercing []string for convenience.
// Anything else yields an empty list.
func listValue(b Bindings, name string) []interface{} {
	v, ok := b.Lookup(name)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		return t
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}
