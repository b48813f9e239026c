package signature

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
)

// maxMatchesPerString caps how many occurrences of one string are recorded
// per scan. Rules only need presence and small counts; a pathological buffer
// must not produce an unbounded match list.
const maxMatchesPerString = 256

// maxEvidence is the maximum length of an evidence snippet.
const maxEvidence = 64

// StringMatch is one occurrence of a rule string in the scanned buffer.
type StringMatch struct {
	// ID is the string identifier ($text).
	ID string

	// Offset is the byte offset of the match in the buffer.
	Offset int

	// Data is the matched text.
	Data string
}

// Match is a rule that fired on a buffer.
type Match struct {
	// Rule is the declared rule name.
	Rule string

	// Source is the name the rule's source was registered under.
	Source string

	// Description is the rule's description meta value.
	Description string

	// Tags are the rule tags.
	Tags []string

	// Meta is the rule's meta section.
	Meta map[string]string

	// Strings are the string occurrences ordered by offset.
	// Empty for rules whose condition does not involve strings.
	Strings []StringMatch
}

// Region returns the first matched region, or a zero StringMatch.
func (m Match) Region() StringMatch {
	if len(m.Strings) == 0 {
		return StringMatch{}
	}
	return m.Strings[0]
}

// Data returns the distinct matched texts in offset order.
func (m Match) Data() []string {
	out := make([]string, 0, len(m.Strings))
	for _, s := range m.Strings {
		if !slices.Contains(out, s.Data) {
			out = append(out, s.Data)
		}
	}
	return out
}

// Evidence returns a short snippet of the first matched region.
func (m Match) Evidence() string {
	return snippet(m.Region().Data)
}

func snippet(value string) string {
	if len(value) <= maxEvidence {
		return value
	}
	return value[:maxEvidence]
}

// literalRef points a literal automaton pattern back at a rule string.
type literalRef struct {
	rule     int
	str      int
	original string
	nocase   bool
}

// compiledRegex is a regex or hex string of a rule.
type compiledRegex struct {
	rule int
	str  int
	re   *regexp.Regexp
}

// Ruleset is an immutable compiled set of rules.
// It is safe for concurrent use.
type Ruleset struct {
	rules    []*Rule
	literals *ahoMatcher
	litRefs  [][]literalRef
	regexes  []compiledRegex
}

// Compile parses and compiles a set of rule sources keyed by name.
// Sources are compiled in name order so the result does not depend on map iteration.
func Compile(sources map[string]string) (*Ruleset, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]sourceEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, sourceEntry{name: name, source: sources[name]})
	}
	return compileEntries(entries)
}

// sourceEntry is one registered source.
type sourceEntry struct {
	name   string
	source string
}

// compileEntries compiles sources in the given order.
func compileEntries(entries []sourceEntry) (*Ruleset, error) {
	rs := &Ruleset{}
	declared := make(map[string]string)

	for _, entry := range entries {
		rules, err := parseRegistered(entry.name, entry.source)
		if err != nil {
			return nil, err
		}
		for _, rule := range rules {
			if owner, dup := declared[rule.Name]; dup {
				return nil, &RuleCompileError{
					Rule: entry.name,
					Err:  fmt.Errorf("%w: %s already declared by %s", ErrDuplicateRule, rule.Name, owner),
				}
			}
			declared[rule.Name] = entry.name
			rs.rules = append(rs.rules, rule)
		}
	}

	var (
		patterns []string
		index    = make(map[string]int)
	)
	for ri, rule := range rs.rules {
		for si, def := range rule.Strings {
			if def.IsLiteral() {
				folded := foldString(def.Value)
				pi, ok := index[folded]
				if !ok {
					pi = len(patterns)
					index[folded] = pi
					patterns = append(patterns, folded)
					rs.litRefs = append(rs.litRefs, nil)
				}
				rs.litRefs[pi] = append(rs.litRefs[pi], literalRef{
					rule:     ri,
					str:      si,
					original: def.Value,
					nocase:   def.Nocase,
				})
				continue
			}

			expr := def.Value
			if def.Nocase {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, &RuleCompileError{
					Rule: rule.source,
					Err:  fmt.Errorf("string %s of rule %s: %w", def.ID, rule.Name, err),
				}
			}
			rs.regexes = append(rs.regexes, compiledRegex{rule: ri, str: si, re: re})
		}
	}

	if len(patterns) > 0 {
		matcher, err := newAhoMatcher(patterns)
		if err != nil {
			return nil, &RuleCompileError{Rule: "literals", Err: err}
		}
		rs.literals = matcher
	}

	return rs, nil
}

// parseRegistered parses a source and checks that it declares the rule it
// was registered under.
func parseRegistered(name, source string) ([]*Rule, error) {
	rules, err := parseSource(name, source)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if rule.Name == name {
			return rules, nil
		}
	}
	return nil, &RuleCompileError{Rule: name, Err: ErrRuleNotDeclared}
}

// Rules returns the compiled rules in compile order.
func (rs *Ruleset) Rules() []*Rule {
	return slices.Clone(rs.rules)
}

// Len returns the number of compiled rules.
func (rs *Ruleset) Len() int {
	return len(rs.rules)
}

// Scan runs every rule over the buffer in a single pass for literals plus one
// pass per regular expression, and returns the rules that fired in compile order.
// Scan has no side effects; scanning the same buffer twice yields the same result.
func (rs *Ruleset) Scan(buffer string) []Match {
	if rs == nil || len(rs.rules) == 0 {
		return nil
	}

	// occurrences[rule][string] holds the string matches of each rule.
	occurrences := make([][][]StringMatch, len(rs.rules))
	for i, rule := range rs.rules {
		occurrences[i] = make([][]StringMatch, len(rule.Strings))
	}

	record := func(ri, si, start, end int) {
		def := rs.rules[ri].Strings[si]
		if len(occurrences[ri][si]) >= maxMatchesPerString {
			return
		}
		if def.Fullword && !isFullword(buffer, start, end) {
			return
		}
		occurrences[ri][si] = append(occurrences[ri][si], StringMatch{
			ID:     def.ID,
			Offset: start,
			Data:   buffer[start:end],
		})
	}

	if rs.literals != nil {
		rs.literals.findAll(buffer, func(pattern, start int) bool {
			for _, ref := range rs.litRefs[pattern] {
				end := start + len(ref.original)
				if !ref.nocase && buffer[start:end] != ref.original {
					continue
				}
				record(ref.rule, ref.str, start, end)
			}
			return true
		})
	}

	for _, cr := range rs.regexes {
		for _, loc := range cr.re.FindAllStringIndex(buffer, maxMatchesPerString) {
			if loc[1] == loc[0] {
				continue
			}
			record(cr.rule, cr.str, loc[0], loc[1])
		}
	}

	var matches []Match
	for ri, rule := range rs.rules {
		hits := make(hitCounts, len(rule.Strings))
		var strs []StringMatch
		for si, def := range rule.Strings {
			hits[def.ID] = len(occurrences[ri][si])
			strs = append(strs, occurrences[ri][si]...)
		}
		if rule.Private || !rule.condition.eval(hits) {
			continue
		}

		sort.SliceStable(strs, func(i, j int) bool {
			return strs[i].Offset < strs[j].Offset
		})
		matches = append(matches, Match{
			Rule:        rule.Name,
			Source:      rule.source,
			Description: rule.Description(),
			Tags:        slices.Clone(rule.Tags),
			Meta:        rule.Meta,
			Strings:     strs,
		})
	}
	return matches
}

// foldString applies foldByte to every byte of s.
func foldString(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = foldByte(b[i])
	}
	return string(b)
}

// isFullword reports whether buffer[start:end] is delimited by
// non-alphanumeric characters (or the buffer edges).
func isFullword(buffer string, start, end int) bool {
	isAlnum := func(c byte) bool {
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}
	if start > 0 && isAlnum(buffer[start-1]) {
		return false
	}
	if end < len(buffer) && isAlnum(buffer[end]) {
		return false
	}
	return true
}
