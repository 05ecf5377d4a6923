// Package domainscope decides, for every observed navigation, whether the
// action occurred inside the system an agent is permitted to operate on.
//
// A Scope is the single source of truth for allow/deny classification during
// one capture or replay session, and for the derived pause/resume state of
// that session. It performs no external calls; classification is a pure
// function of the configuration and the observed URL.
package domainscope

import (
	"fmt"
	"strings"
)

// ConfigError indicates an invalid domain-scope configuration. It is the only
// error this package produces: runtime classification never fails, it
// degrades to a denied verdict instead.
type ConfigError struct {
	Field  string
	Reason string
}

// Error returns the validation failure description.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("domain scope config: %s: %s", e.Field, e.Reason)
}

// Config scopes a capture or replay session to one target system.
type Config struct {
	// Metadata holds optional caller-supplied information about the scope.
	Metadata map[string]interface{}

	// BaseDomain is the root domain the session is scoped to. The base
	// domain and all of its subdomains are always allowed. Immutable after
	// construction.
	BaseDomain string

	// AllowedDomains lists additional exact hostnames that are allowed.
	// Grows via Scope.AddAllowedDomain; never shrinks.
	AllowedDomains []string

	// SSOProviders lists external authentication hosts exempted from
	// denial: exact hostnames or "*.suffix" wildcards.
	SSOProviders []string
}

// ValidateConfig checks and normalizes a raw configuration map. It fails with
// a ConfigError when baseDomain is missing, empty, or not a string. Domain
// lists are lower-cased and de-duplicated; a map under the "metadata" key is
// copied into Config.Metadata, any other unknown keys are ignored. The input
// map is not retained.
func ValidateConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, &ConfigError{Field: "baseDomain", Reason: "configuration is missing"}
	}

	baseVal, ok := raw["baseDomain"]
	if !ok {
		return nil, &ConfigError{Field: "baseDomain", Reason: "required field is missing"}
	}
	base, ok := baseVal.(string)
	if !ok {
		return nil, &ConfigError{Field: "baseDomain", Reason: fmt.Sprintf("expected string, got %T", baseVal)}
	}
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		return nil, &ConfigError{Field: "baseDomain", Reason: "must not be empty"}
	}

	allowed, err := normalizeDomainList(raw["allowedDomains"], "allowedDomains")
	if err != nil {
		return nil, err
	}
	sso, err := normalizeDomainList(raw["ssoProviders"], "ssoProviders")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseDomain:     base,
		AllowedDomains: allowed,
		SSOProviders:   sso,
	}
	if meta, ok := raw["metadata"].(map[string]interface{}); ok {
		cfg.Metadata = make(map[string]interface{}, len(meta))
		for k, v := range meta {
			cfg.Metadata[k] = v
		}
	}
	return cfg, nil
}

// normalizeDomainList lower-cases, trims, and de-duplicates a string list
// field. A missing field yields an empty list; a non-list or non-string
// element is a ConfigError.
func normalizeDomainList(val interface{}, field string) ([]string, error) {
	if val == nil {
		return nil, nil
	}

	var items []string
	switch v := val.(type) {
	case []string:
		items = v
	case []interface{}:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("element %d: expected string, got %T", i, item)}
			}
			items = append(items, s)
		}
	default:
		return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("expected string list, got %T", val)}
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		d := strings.ToLower(strings.TrimSpace(item))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}
