package engine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/getvergo/vergo-agent/pkg/types"
)

// comparator is the closed set of rule condition operators. Every operator
// string resolves to exactly one variant at evaluation time; strings outside
// the set resolve to failClosed, so a malformed rule can never accidentally
// trigger a skip, wait, or retry.
type comparator interface {
	compare(left, right interface{}) bool
}

type equals struct{}
type notEquals struct{}
type greaterThan struct{}
type lessThan struct{}
type greaterOrEqual struct{}
type lessOrEqual struct{}
type contains struct{}

// failClosed is the explicit variant for unknown operators: it matches
// nothing.
type failClosed struct{}

func (equals) compare(l, r interface{}) bool    { return looseEqual(l, r) }
func (notEquals) compare(l, r interface{}) bool { return !looseEqual(l, r) }

func (greaterThan) compare(l, r interface{}) bool {
	lf, rf, ok := numericPair(l, r)
	return ok && lf > rf
}

func (lessThan) compare(l, r interface{}) bool {
	lf, rf, ok := numericPair(l, r)
	return ok && lf < rf
}

func (greaterOrEqual) compare(l, r interface{}) bool {
	lf, rf, ok := numericPair(l, r)
	return ok && lf >= rf
}

func (lessOrEqual) compare(l, r interface{}) bool {
	lf, rf, ok := numericPair(l, r)
	return ok && lf <= rf
}

func (contains) compare(l, r interface{}) bool {
	switch list := l.(type) {
	case []interface{}:
		for _, item := range list {
			if looseEqual(item, r) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range list {
			if looseEqual(item, r) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(asString(l), asString(r))
	}
}

func (failClosed) compare(interface{}, interface{}) bool { return false }

// operators maps condition operator strings to their variants.
var operators = map[string]comparator{
	"eq":       equals{},
	"neq":      notEquals{},
	"gt":       greaterThan{},
	"lt":       lessThan{},
	"gte":      greaterOrEqual{},
	"lte":      lessOrEqual{},
	"contains": contains{},
}

// EvaluateCondition resolves a condition against the bindings. A reference to
// an undefined binding or an unknown operator evaluates to false.
func EvaluateCondition(cond types.Condition, b Bindings) bool {
	left, bound := b.Lookup(cond.Variable)
	if !bound {
		return false
	}
	op, ok := operators[cond.Operator]
	if !ok {
		op = failClosed{}
	}
	return op.compare(left, cond.Value)
}

// RuleDecision is the combined effect of every rule matched for one step.
type RuleDecision struct {
	// Traces records each evaluated rule, matched or not, in evaluation
	// order.
	Traces []types.RuleTrace

	// WaitMs accumulates delays from matched wait rules.
	WaitMs float64

	// ExtraAttempts counts matched retry rules; each extends the step's
	// retry budget by one attempt.
	ExtraAttempts int

	// Skip is set when any skip rule matched.
	Skip bool
}

// EvaluateRules evaluates the enabled rules in ascending priority order
// against the bindings and folds every match into a single decision.
func EvaluateRules(rules []types.Rule, b Bindings) RuleDecision {
	ordered := make([]types.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var d RuleDecision
	for _, r := range ordered {
		matched := EvaluateCondition(r.Condition, b)
		d.Traces = append(d.Traces, types.RuleTrace{
			RuleID:  r.ID,
			Action:  r.Action.Type,
			Matched: matched,
		})
		if !matched {
			continue
		}
		switch r.Action.Type {
		case types.RuleActionSkip:
			d.Skip = true
		case types.RuleActionWait:
			d.WaitMs += r.Action.Value
		case types.RuleActionRetry:
			d.ExtraAttempts++
		}
	}
	return d
}

// looseEqual compares two values the way recorded rule specs expect:
// numerically when both sides coerce to numbers, by string rendering
// otherwise.
func looseEqual(l, r interface{}) bool {
	if lf, rf, ok := numericPair(l, r); ok {
		return lf == rf
	}
	return asString(l) == asString(r)
}

// numericPair coerces both values to float64, reporting whether both sides
// are numeric.
func numericPair(l, r interface{}) (float64, float64, bool) {
	lf, lok := asNumber(l)
	rf, rok := asNumber(r)
	return lf, rf, lok && rok
}

func asNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}
