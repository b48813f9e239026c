package model

import (
	"slices"
	"strings"
)

// CSPPolicy represents a parsed Content-Security-Policy header.
// CSP is interesting for reconnaissance because it lists the external
// hosts a site is allowed to talk to.
type CSPPolicy struct {
	// Raw is the original CSP header value.
	Raw string `json:"raw"`

	// Directives maps each directive name (lowercased) to its source list.
	Directives map[string][]string `json:"directives,omitempty"`

	// order keeps directive names in header order.
	order []string
}

// ParseCSP parses a Content-Security-Policy header value.
// Unknown directives are kept; empty directives are dropped.
func ParseCSP(raw string) *CSPPolicy {
	policy := &CSPPolicy{
		Raw:        raw,
		Directives: make(map[string][]string),
	}

	for _, part := range strings.Split(raw, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])
		if _, seen := policy.Directives[name]; seen {
			// The first occurrence of a directive wins, later ones are ignored by browsers.
			continue
		}
		policy.Directives[name] = fields[1:]
		policy.order = append(policy.order, name)
	}

	return policy
}

// Sources returns the source list of a directive.
func (p *CSPPolicy) Sources(directive string) []string {
	return p.Directives[strings.ToLower(directive)]
}

// Hosts returns the unique hostnames referenced by the policy in header order.
// Keywords ('self', nonces, hashes), scheme-only sources (https:, data:) and
// bare wildcards are skipped. A leading "*." is removed.
func (p *CSPPolicy) Hosts() []string {
	var hosts []string
	for _, name := range p.order {
		for _, src := range p.Directives[name] {
			host := cspSourceHost(src)
			if host == "" || slices.Contains(hosts, host) {
				continue
			}
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// cspSourceHost returns the host part of a CSP source expression, or "".
func cspSourceHost(src string) string {
	if src == "" || src == "*" || strings.HasPrefix(src, "'") {
		return ""
	}
	if strings.HasSuffix(src, ":") && !strings.Contains(src, "/") {
		// scheme-source such as "https:" or "data:"
		return ""
	}
	if i := strings.Index(src, "://"); i >= 0 {
		src = src[i+3:]
	}
	if i := strings.IndexAny(src, "/?#"); i >= 0 {
		src = src[:i]
	}
	if i := strings.LastIndex(src, ":"); i >= 0 {
		src = src[:i]
	}
	src = strings.TrimPrefix(src, "*.")
	src = strings.ToLower(strings.TrimSuffix(src, "."))
	if !strings.Contains(src, ".") || strings.ContainsAny(src, "*'\"") {
		return ""
	}
	return src
}
