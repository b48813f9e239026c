package signature

import (
	"slices"
	"sync"
)

// Registry owns the rule sources of one engine instance and the ruleset
// compiled from them. Rules can be added at any time; the next call to
// Ruleset or Scan recompiles the merged set.
//
// Design decision: The registry is an explicit object owned by the engine,
// never package-level state. Two engines in one process (tests do this)
// must not see each other's rules.
type Registry struct {
	mu       sync.RWMutex
	entries  []sourceEntry
	compiled *Ruleset
	dirty    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dirty: true}
}

// Add registers a rule source under name, replacing any earlier source
// with the same name. The source is parsed immediately so malformed rules
// fail here with a *RuleCompileError and are never stored.
func (r *Registry) Add(name, source string) error {
	if _, err := parseRegistered(name, source); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.entries {
		if entry.name == name {
			r.entries[i].source = source
			r.dirty = true
			return nil
		}
	}
	r.entries = append(r.entries, sourceEntry{name: name, source: source})
	r.dirty = true
	return nil
}

// Remove unregisters a source. It reports whether the name was registered.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.entries {
		if entry.name == name {
			r.entries = slices.Delete(r.entries, i, i+1)
			r.dirty = true
			return true
		}
	}
	return false
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.name)
	}
	return names
}

// Source returns the source registered under name.
func (r *Registry) Source(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.name == name {
			return entry.source, true
		}
	}
	return "", false
}

// Ruleset returns the compiled ruleset, recompiling if rules were added
// since the last compilation. Rules are compiled in registration order.
func (r *Registry) Ruleset() (*Ruleset, error) {
	r.mu.RLock()
	if !r.dirty {
		rs := r.compiled
		r.mu.RUnlock()
		return rs, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirty {
		return r.compiled, nil
	}

	rs, err := compileEntries(slices.Clone(r.entries))
	if err != nil {
		return nil, err
	}
	r.compiled = rs
	r.dirty = false
	return rs, nil
}

// Scan compiles if needed and scans the buffer.
func (r *Registry) Scan(buffer string) ([]Match, error) {
	rs, err := r.Ruleset()
	if err != nil {
		return nil, err
	}
	return rs.Scan(buffer), nil
}
