package domainscope

import "github.com/gobwas/glob"

// hostMatcher is the closed set of ways an SSO provider entry can match a
// hostname. Each configured entry compiles to exactly one variant, so the
// match semantics are fixed at construction rather than re-derived per URL.
type hostMatcher interface {
	matches(host string) bool
	pattern() string
}

// exactMatcher matches a hostname by string equality.
type exactMatcher struct {
	host string
}

func (m exactMatcher) matches(host string) bool { return host == m.host }
func (m exactMatcher) pattern() string          { return m.host }

// wildcardMatcher matches hostnames against a "*.suffix" pattern. The glob is
// compiled without separators, so "*.auth0.com" matches any depth of
// subdomain under auth0.com.
type wildcardMatcher struct {
	src  string
	glob glob.Glob
}

func (m wildcardMatcher) matches(host string) bool { return m.glob.Match(host) }
func (m wildcardMatcher) pattern() string          { return m.src }

// neverMatcher is the explicit fail-closed variant: an entry that could not
// be compiled matches nothing instead of silently falling through.
type neverMatcher struct {
	src string
}

func (m neverMatcher) matches(string) bool { return false }
func (m neverMatcher) pattern() string     { return m.src }

// compileMatcher turns one SSO provider entry into its matcher variant.
// Entries are already lower-cased by config validation.
func compileMatcher(entry string) hostMatcher {
	if len(entry) > 2 && entry[0] == '*' && entry[1] == '.' {
		g, err := glob.Compile(entry)
		if err != nil {
			return neverMatcher{src: entry}
		}
		return wildcardMatcher{src: entry, glob: g}
	}
	return exactMatcher{host: entry}
}

// compileMatchers compiles every configured SSO provider entry.
func compileMatchers(entries []string) []hostMatcher {
	out := make([]hostMatcher, 0, len(entries))
	for _, e := range entries {
		out = append(out, compileMatcher(e))
	}
	return out
}
