package engine

import (
	"fmt"
	"regexp"
)

// Bindings is the immutable-by-convention variable map a run executes under.
// Loop iterations layer their iterator binding on top via With; the base map
// is never mutated in place.
type Bindings map[string]interface{}

// With returns a copy of the bindings with one additional entry.
func (b Bindings) With(name string, value interface{}) Bindings {
	out := make(Bindings, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[name] = value
	return out
}

// Lookup returns the bound value and whether the name is bound.
func (b Bindings) Lookup(name string) (interface{}, bool) {
	v, ok := b[name]
	return v, ok
}

// placeholderPattern matches {{name}} references inside recorded strings.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Resolve substitutes {{name}} placeholders in s against the bindings.
// An unresolved placeholder is left verbatim; this is not an error.
func Resolve(s string, b Bindings) string {
	if s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := b[name]
		if !ok {
			return match
		}
		return stringify(v)
	})
}

// stringify renders a bound value for substitution into a selector, value,
// or URL string.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
