package domainscope

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// InvalidDomain is the domain recorded for URLs that cannot be parsed.
const InvalidDomain = "invalid"

// Reason classifies why a navigation was allowed or denied.
type Reason string

const (
	ReasonBaseDomain Reason = "base_domain"        // ReasonBaseDomain: hostname equals the configured base domain.
	ReasonSubdomain  Reason = "subdomain"          // ReasonSubdomain: hostname is a subdomain of the base domain.
	ReasonSSO        Reason = "sso_provider"       // ReasonSSO: hostname matched a configured SSO provider entry.
	ReasonAllowlist  Reason = "explicit_allowlist" // ReasonAllowlist: hostname is on the explicit allow-list.
	ReasonDenied     Reason = "denied"             // ReasonDenied: hostname matched nothing; navigation is outside the target system.
)

// Verdict is the outcome of classifying one URL.
type Verdict struct {
	// Metadata carries non-sensitive context about the classification.
	// It never contains query-string values.
	Metadata map[string]string

	// Domain is the lower-cased hostname, or InvalidDomain when the URL
	// could not be parsed.
	Domain string

	// Reason explains the decision.
	Reason Reason

	// Allowed reports whether the navigation is inside the target system.
	Allowed bool
}

// NavigationEvent is one observed navigation, created once per
// RecordNavigation call and immutable afterwards.
type NavigationEvent struct {
	// Timestamp is when the navigation was recorded.
	Timestamp time.Time `json:"timestamp"`

	// URL is the navigated URL as observed.
	URL string `json:"url"`

	// Domain is the lower-cased hostname, or InvalidDomain.
	Domain string `json:"domain"`

	// Reason explains the allow/deny decision.
	Reason Reason `json:"reason"`

	// Allowed reports whether the navigation was inside the target system.
	Allowed bool `json:"allowed"`
}

// RecordingState is the derived pause state of the session. It is recomputed
// from the most recent navigation event, never mutated independently.
type RecordingState struct {
	// CurrentDomain is the hostname of the most recent navigation, or
	// empty before any navigation was recorded.
	CurrentDomain string `json:"currentDomain"`

	// Reason describes why the session is paused. Empty while recording.
	Reason string `json:"reason,omitempty"`

	// IsPaused reports whether the most recent navigation was denied.
	IsPaused bool `json:"isPaused"`
}

// Stats aggregates the navigation history of one session.
type Stats struct {
	// DomainsVisited is the set of distinct hostnames observed.
	DomainsVisited map[string]bool `json:"domainsVisited"`

	// TotalNavigations counts every recorded navigation.
	TotalNavigations int `json:"totalNavigations"`

	// AllowedNavigations counts navigations classified as allowed.
	AllowedNavigations int `json:"allowedNavigations"`

	// DeniedNavigations counts navigations classified as denied.
	DeniedNavigations int `json:"deniedNavigations"`

	// SSONavigations counts allowed navigations attributed to SSO
	// providers. Always a subset of AllowedNavigations.
	SSONavigations int `json:"ssoNavigations"`
}

// Summary is a compact view of the session for diagnostics: current state,
// aggregate stats, and the most recent events.
type Summary struct {
	// State is the current recording state.
	State RecordingState `json:"state"`

	// Stats aggregates the full history.
	Stats Stats `json:"stats"`

	// RecentEvents holds at most the last 10 navigation events.
	RecentEvents []NavigationEvent `json:"recentEvents"`

	// BaseDomain is the scope's configured base domain.
	BaseDomain string `json:"baseDomain"`
}

// summaryEventCap bounds Summary.RecentEvents regardless of history size.
const summaryEventCap = 10

// Scope owns the domain-scope decision state for exactly one capture or
// replay session. It is not safe for concurrent writers: RecordNavigation and
// AddAllowedDomain must be called from a single logical thread of control.
// Create one Scope per active session and discard it afterwards.
type Scope struct {
	cfg      *Config
	matchers []hostMatcher
	history  []NavigationEvent
	state    RecordingState
}

// NewScope constructs a Scope over a validated configuration.
func NewScope(cfg *Config) *Scope {
	return &Scope{
		cfg:      cfg,
		matchers: compileMatchers(cfg.SSOProviders),
	}
}

// Config returns the scope's live configuration.
func (s *Scope) Config() *Config {
	return s.cfg
}

// IsAllowedDomain classifies a URL against the scope. It never fails: an
// empty or unparsable URL yields a denied verdict with Domain set to
// InvalidDomain. Ports, paths, and query strings are ignored for hostname
// comparison; the returned metadata never carries query-string values.
func (s *Scope) IsAllowedDomain(rawURL string) Verdict {
	host, meta := extractHost(rawURL)
	if host == "" {
		return Verdict{
			Allowed:  false,
			Reason:   ReasonDenied,
			Domain:   InvalidDomain,
			Metadata: meta,
		}
	}

	v := Verdict{Domain: host, Metadata: meta}
	switch {
	case host == s.cfg.BaseDomain:
		v.Allowed, v.Reason = true, ReasonBaseDomain
	case strings.HasSuffix(host, "."+s.cfg.BaseDomain):
		v.Allowed, v.Reason = true, ReasonSubdomain
	default:
		if provider := s.matchSSO(host); provider != "" {
			v.Allowed, v.Reason = true, ReasonSSO
			v.Metadata["ssoProvider"] = provider
		} else if s.inAllowlist(host) {
			v.Allowed, v.Reason = true, ReasonAllowlist
		} else {
			v.Allowed, v.Reason = false, ReasonDenied
		}
	}
	return v
}

// RecordNavigation classifies a URL, appends the resulting event to the
// session history, and recomputes the recording state. A denied navigation
// pauses the session; any allowed navigation resumes it.
func (s *Scope) RecordNavigation(rawURL string) NavigationEvent {
	v := s.IsAllowedDomain(rawURL)
	event := NavigationEvent{
		URL:       rawURL,
		Domain:    v.Domain,
		Allowed:   v.Allowed,
		Reason:    v.Reason,
		Timestamp: time.Now(),
	}
	s.history = append(s.history, event)

	s.state = RecordingState{CurrentDomain: v.Domain}
	if !v.Allowed {
		s.state.IsPaused = true
		s.state.Reason = fmt.Sprintf("navigation to %q is outside target system %q", v.Domain, s.cfg.BaseDomain)
	}
	return event
}

// AddAllowedDomain appends a hostname to the live allow-list. The new entry
// takes effect on the next IsAllowedDomain call; no reconstruction is needed.
// Empty and duplicate entries are ignored.
func (s *Scope) AddAllowedDomain(domain string) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" || s.inAllowlist(d) {
		return
	}
	s.cfg.AllowedDomains = append(s.cfg.AllowedDomains, d)
}

// RecordingState returns the current derived pause state.
func (s *Scope) RecordingState() RecordingState {
	return s.state
}

// NavigationHistory returns a copy of the full ordered event history.
func (s *Scope) NavigationHistory() []NavigationEvent {
	out := make([]NavigationEvent, len(s.history))
	copy(out, s.history)
	return out
}

// DomainStats aggregates the session history.
func (s *Scope) DomainStats() Stats {
	stats := Stats{DomainsVisited: make(map[string]bool)}
	for _, e := range s.history {
		stats.TotalNavigations++
		if e.Allowed {
			stats.AllowedNavigations++
			if e.Reason == ReasonSSO {
				stats.SSONavigations++
			}
		} else {
			stats.DeniedNavigations++
		}
		stats.DomainsVisited[e.Domain] = true
	}
	return stats
}

// GetSummary returns the compact diagnostic view: state, stats, and at most
// the last 10 events.
func (s *Scope) GetSummary() Summary {
	recent := s.history
	if len(recent) > summaryEventCap {
		recent = recent[len(recent)-summaryEventCap:]
	}
	events := make([]NavigationEvent, len(recent))
	copy(events, recent)

	return Summary{
		BaseDomain:   s.cfg.BaseDomain,
		State:        s.state,
		Stats:        s.DomainStats(),
		RecentEvents: events,
	}
}

// ClearHistory empties the history and resets the recording state.
func (s *Scope) ClearHistory() {
	s.history = nil
	s.state = RecordingState{}
}

// matchSSO returns the pattern of the first SSO matcher that accepts the
// hostname, or empty when none matches.
func (s *Scope) matchSSO(host string) string {
	for _, m := range s.matchers {
		if m.matches(host) {
			return m.pattern()
		}
	}
	return ""
}

func (s *Scope) inAllowlist(host string) bool {
	for _, d := range s.cfg.AllowedDomains {
		if d == host {
			return true
		}
	}
	return false
}

// extractHost parses a URL into its lower-cased hostname plus non-sensitive
// metadata. Query strings are deliberately excluded from the metadata so
// tokens and session ids never reach history or logs.
func extractHost(rawURL string) (string, map[string]string) {
	meta := make(map[string]string)
	if strings.TrimSpace(rawURL) == "" {
		meta["parseError"] = "empty url"
		return "", meta
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		// url.Error echoes the full raw URL, query string included, so
		// only a fixed message may reach metadata.
		meta["parseError"] = "malformed url"
		return "", meta
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		meta["parseError"] = "url has no hostname"
		return "", meta
	}

	meta["scheme"] = u.Scheme
	meta["path"] = u.Path
	return host, meta
}
