package scope

import (
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// OutOfScope is the distance the oracle reports for anything that is not a
// declared target. Callers add the distance of the parent event on top.
const OutOfScope = 1

// Oracle reports the scope distance of a URL.
// Implementations must be safe for concurrent use.
type Oracle interface {
	// ScopeDistance returns 0 for in-scope URLs and a positive distance otherwise.
	ScopeDistance(u *url.URL) int
}

// TargetOracle is an Oracle over a list of targets.
type TargetOracle struct {
	mu       sync.RWMutex
	hosts    map[string]struct{}
	prefixes []netip.Prefix
	targets  []string
}

// NewTargetOracle creates an oracle from target strings.
// Invalid targets are reported; the valid ones are still added.
func NewTargetOracle(targets ...string) (*TargetOracle, error) {
	o := &TargetOracle{
		hosts: make(map[string]struct{}),
	}

	var firstErr error
	for _, target := range targets {
		if err := o.Add(target); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return o, firstErr
}

// Add declares one more target.
func (o *TargetOracle) Add(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrEmptyTarget
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if prefix, err := netip.ParsePrefix(target); err == nil {
		o.prefixes = append(o.prefixes, prefix.Masked())
		o.targets = append(o.targets, target)
		return nil
	}

	host := TargetHost(target)
	if host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	o.hosts[host] = struct{}{}
	o.targets = append(o.targets, target)
	return nil
}

// Targets returns the declared targets in the order they were added.
func (o *TargetOracle) Targets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.targets)
}

// ScopeDistance returns 0 when the host of u is a target, a subdomain of a
// target host name, or an address inside a target network. Everything else is
// OutOfScope.
func (o *TargetOracle) ScopeDistance(u *url.URL) int {
	if u == nil {
		return OutOfScope
	}
	if o.InScope(u.Hostname()) {
		return 0
	}
	return OutOfScope
}

// InScope reports whether a bare host name or IP address is in scope.
func (o *TargetOracle) InScope(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if addr, err := netip.ParseAddr(host); err == nil {
		if _, ok := o.hosts[addr.Unmap().String()]; ok {
			return true
		}
		for _, prefix := range o.prefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
		return false
	}

	// Walk up the labels: www.test.notreal, test.notreal, notreal.
	for name := host; name != ""; {
		if _, ok := o.hosts[name]; ok {
			return true
		}
		_, parent, found := strings.Cut(name, ".")
		if !found {
			break
		}
		name = parent
	}
	return false
}

// TargetHost returns the lower-case host of a target string, which is either
// a URL or a bare host, or "" if it has none.
func TargetHost(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return ""
		}
		return normalizeHost(u.Hostname())
	}
	// host:port and host/path forms
	if i := strings.IndexByte(target, '/'); i >= 0 {
		target = target[:i]
	}
	if addr, err := netip.ParseAddr(strings.Trim(target, "[]")); err == nil {
		return addr.Unmap().String()
	}
	if h, _, ok := strings.Cut(target, ":"); ok {
		target = h
	}
	return normalizeHost(target)
}

// normalizeHost lower-cases a host, strips brackets and a trailing dot, and
// canonicalizes IP literals.
func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.Trim(strings.TrimSpace(host), "[]")), ".")
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	if strings.ContainsAny(host, " /\\@") {
		return ""
	}
	return host
}
