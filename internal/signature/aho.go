package signature

import "errors"

// ahoMatcher is an Aho-Corasick automaton over ASCII-folded byte patterns.
// It reports every occurrence of every pattern in a single pass.
type ahoMatcher struct {
	nodes []ahoNode
	lens  []int
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  []int
}

// newAhoMatcher builds the automaton. Patterns are folded to lower case;
// callers verify case-sensitive matches against the original bytes.
func newAhoMatcher(patterns []string) (*ahoMatcher, error) {
	if len(patterns) == 0 {
		return nil, errors.New("patterns are required")
	}

	m := &ahoMatcher{
		nodes: []ahoNode{{next: map[byte]int{}}},
		lens:  make([]int, len(patterns)),
	}
	for idx, pattern := range patterns {
		m.lens[idx] = len(pattern)
		if pattern == "" {
			continue
		}
		current := 0
		for i := 0; i < len(pattern); i++ {
			b := foldByte(pattern[i])
			next, ok := m.nodes[current].next[b]
			if !ok {
				m.nodes = append(m.nodes, ahoNode{next: map[byte]int{}})
				next = len(m.nodes) - 1
				m.nodes[current].next[b] = next
			}
			current = next
		}
		m.nodes[current].out = append(m.nodes[current].out, idx)
	}

	if len(m.nodes) == 1 {
		return nil, errors.New("no non-empty patterns")
	}

	queue := make([]int, 0, len(m.nodes))
	for _, next := range m.nodes[0].next {
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range m.nodes[state].next {
			fail := m.nodes[state].fail
			for fail != 0 {
				if _, ok := m.nodes[fail].next[b]; ok {
					break
				}
				fail = m.nodes[fail].fail
			}
			if target, ok := m.nodes[fail].next[b]; ok && target != next {
				m.nodes[next].fail = target
			} else {
				m.nodes[next].fail = 0
			}
			m.nodes[next].out = append(m.nodes[next].out, m.nodes[m.nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	return m, nil
}

// findAll calls fn for every pattern occurrence with the pattern index and
// the start offset of the match. Returning false from fn stops the scan.
func (m *ahoMatcher) findAll(input string, fn func(pattern, start int) bool) {
	state := 0
	for i := 0; i < len(input); i++ {
		b := foldByte(input[i])
		for state != 0 {
			if _, ok := m.nodes[state].next[b]; ok {
				break
			}
			state = m.nodes[state].fail
		}

		if next, ok := m.nodes[state].next[b]; ok {
			state = next
		}

		for _, pattern := range m.nodes[state].out {
			if !fn(pattern, i-m.lens[pattern]+1) {
				return
			}
		}
	}
}

// foldByte lowercases ASCII letters and leaves every other byte alone,
// so offsets in the folded input equal offsets in the original.
func foldByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
