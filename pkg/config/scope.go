package config

import (
	"fmt"
	"strings"
)

// SectionIDDomainScope is the identifier for the domain scope section.
const SectionIDDomainScope = "domain_scope"

// DomainScopeSection holds the default domain-scope policy applied to
// capture and replay sessions: the base domain the agent is confined to,
// extra allowed hosts, and the SSO providers exempted from denial.
type DomainScopeSection struct {
	baseDomain     string
	allowedDomains []string
	ssoProviders   []string
}

// NewDomainScopeSection creates a domain scope section with common SSO
// providers pre-listed.
func NewDomainScopeSection() *DomainScopeSection {
	return &DomainScopeSection{
		ssoProviders: []string{
			"accounts.google.com",
			"login.microsoftonline.com",
			"*.okta.com",
			"*.auth0.com",
		},
	}
}

// ID returns the section identifier.
func (s *DomainScopeSection) ID() string {
	return SectionIDDomainScope
}

// Data returns the current configuration data.
func (s *DomainScopeSection) Data() map[string]interface{} {
	return map[string]interface{}{
		"baseDomain":     s.baseDomain,
		"allowedDomains": toInterfaceSlice(s.allowedDomains),
		"ssoProviders":   toInterfaceSlice(s.ssoProviders),
	}
}

// SetData updates the configuration from the provided data.
func (s *DomainScopeSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	if base, ok := data["baseDomain"]; ok {
		str, ok := base.(string)
		if !ok {
			return fmt.Errorf("baseDomain: expected string, got %T", base)
		}
		s.baseDomain = str
	}

	allowed, err := stringSlice(data["allowedDomains"], "allowedDomains")
	if err != nil {
		return err
	}
	if allowed != nil {
		s.allowedDomains = allowed
	}

	sso, err := stringSlice(data["ssoProviders"], "ssoProviders")
	if err != nil {
		return err
	}
	if sso != nil {
		s.ssoProviders = sso
	}
	return nil
}

// Validate validates the current configuration. An empty base domain is
// legal here: it means runs execute unscoped unless a scope is given per run.
func (s *DomainScopeSection) Validate() error {
	for i, d := range s.allowedDomains {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("allowedDomains entry %d is empty", i)
		}
	}
	for i, p := range s.ssoProviders {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("ssoProviders entry %d is empty", i)
		}
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *DomainScopeSection) Reset() {
	*s = *NewDomainScopeSection()
}

// BaseDomain returns the configured base domain, empty when unscoped.
func (s *DomainScopeSection) BaseDomain() string {
	return s.baseDomain
}

// ScopeConfig renders the section as the raw map the domainscope package
// validates. Returns nil when no base domain is configured.
func (s *DomainScopeSection) ScopeConfig() map[string]interface{} {
	if strings.TrimSpace(s.baseDomain) == "" {
		return nil
	}
	return map[string]interface{}{
		"baseDomain":     s.baseDomain,
		"allowedDomains": toInterfaceSlice(s.allowedDomains),
		"ssoProviders":   toInterfaceSlice(s.ssoProviders),
	}
}

func toInterfaceSlice(items []string) []interface{} {
	out := make([]interface{}, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// stringSlice coerces a stored JSON list back into strings. A missing value
// yields nil without error.
func stringSlice(val interface{}, field string) ([]string, error) {
	if val == nil {
		return nil, nil
	}
	items, ok := val.([]interface{})
	if !ok {
		if direct, ok := val.([]string); ok {
			return direct, nil
		}
		return nil, fmt.Errorf("%s: expected list, got %T", field, val)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entry %d: expected string, got %T", field, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
