package signature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// stringKind is the syntactic form of a rule string.
type stringKind int

const (
	kindText stringKind = iota
	kindRegex
	kindHex
)

// StringDef is one entry of a rule's strings section.
type StringDef struct {
	// ID is the identifier including the leading '$'.
	// Anonymous strings get a generated ID that cannot be referenced by name.
	ID string

	// Value is the decoded literal for text strings, or a Go regular
	// expression for regex and hex strings.
	Value string

	// Nocase makes the match case-insensitive.
	Nocase bool

	// Fullword requires the match to be delimited by non-alphanumeric characters.
	Fullword bool

	kind stringKind
}

// IsLiteral reports whether the string is matched by the literal automaton.
func (s StringDef) IsLiteral() bool {
	return s.kind == kindText
}

// Rule is a parsed rule.
type Rule struct {
	// Name is the declared rule name.
	Name string

	// Tags are the rule tags (rule Name : tag1 tag2 { ... }).
	Tags []string

	// Meta holds the meta section. Numbers and booleans are kept in their text form.
	Meta map[string]string

	// Strings holds the strings section in declaration order.
	Strings []StringDef

	// Private rules are evaluated but never reported.
	Private bool

	condition condition
	source    string
}

// Description returns the "description" meta value.
func (r *Rule) Description() string {
	return r.Meta["description"]
}

// Source returns the name the rule's source was registered under.
func (r *Rule) Source() string {
	return r.source
}

// parser is a hand-written recursive descent parser over one rule source.
type parser struct {
	src  string
	pos  int
	name string
}

// Parse returns the rules declared in src in declaration order without
// compiling them. name is only used in errors.
func Parse(name, src string) ([]*Rule, error) {
	return parseSource(name, src)
}

// parseSource parses every rule declared in src.
// name is the registration name, used for error reporting.
func parseSource(name, src string) ([]*Rule, error) {
	p := &parser{src: src, name: name}

	var rules []*Rule
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		if p.peekWord() == "import" || p.peekWord() == "include" {
			return nil, p.errorf("%w: %s", ErrUnsupported, p.peekWord())
		}
		rule, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		rule.source = name
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return nil, &RuleCompileError{Rule: name, Err: ErrEmptyRuleSource}
	}
	return rules, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &RuleCompileError{Rule: p.name, Line: p.line(), Err: fmt.Errorf(format, args...)}
}

func (p *parser) line() int {
	return 1 + strings.Count(p.src[:min(p.pos, len(p.src))], "\n")
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// skipSpace skips whitespace and // or /* */ comments.
func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			if i := strings.IndexByte(p.src[p.pos:], '\n'); i >= 0 {
				p.pos += i + 1
			} else {
				p.pos = len(p.src)
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			if i := strings.Index(p.src[p.pos+2:], "*/"); i >= 0 {
				p.pos += i + 4
			} else {
				p.pos = len(p.src)
			}
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// peekWord returns the identifier at the current position without consuming it.
func (p *parser) peekWord() string {
	p.skipSpace()
	end := p.pos
	if end < len(p.src) && isIdentStart(p.src[end]) {
		for end < len(p.src) && isIdentChar(p.src[end]) {
			end++
		}
	}
	return p.src[p.pos:end]
}

// consumeWord consumes the keyword w if it is next.
func (p *parser) consumeWord(w string) bool {
	if p.peekWord() != w {
		return false
	}
	p.pos += len(w)
	return true
}

// consume consumes the punctuation s if it is next.
func (p *parser) consume(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.consume(s) {
		return p.errorf("expected %q", s)
	}
	return nil
}

func (p *parser) ident() (string, error) {
	w := p.peekWord()
	if w == "" {
		return "", p.errorf("expected identifier")
	}
	p.pos += len(w)
	return w, nil
}

func (p *parser) parseRule() (*Rule, error) {
	rule := &Rule{Meta: make(map[string]string)}

	for {
		switch p.peekWord() {
		case "private":
			p.consumeWord("private")
			rule.Private = true
			continue
		case "global":
			p.consumeWord("global")
			continue
		}
		break
	}

	if !p.consumeWord("rule") {
		return nil, p.errorf("expected 'rule'")
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	rule.Name = name

	if p.consume(":") {
		for {
			p.skipSpace()
			if p.peek() == '{' || p.eof() {
				break
			}
			tag, err := p.ident()
			if err != nil {
				return nil, err
			}
			rule.Tags = append(rule.Tags, tag)
		}
	}

	if err := p.expect("{"); err != nil {
		return nil, err
	}

	for {
		if p.consume("}") {
			break
		}
		switch {
		case p.consumeWord("meta"):
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			if err := p.parseMeta(rule); err != nil {
				return nil, err
			}
		case p.consumeWord("strings"):
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			if err := p.parseStrings(rule); err != nil {
				return nil, err
			}
		case p.consumeWord("condition"):
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			if err := p.parseCondition(rule); err != nil {
				return nil, err
			}
		default:
			if p.eof() {
				return nil, p.errorf("unterminated rule %s", rule.Name)
			}
			return nil, p.errorf("unexpected %q in rule %s", p.excerpt(), rule.Name)
		}
	}

	if rule.condition == nil {
		return nil, p.errorf("rule %s has no condition", rule.Name)
	}
	return rule, nil
}

// excerpt returns a short piece of the source at the current position for error messages.
func (p *parser) excerpt() string {
	end := min(p.pos+16, len(p.src))
	return p.src[p.pos:end]
}

func (p *parser) parseMeta(rule *Rule) error {
	for {
		p.skipSpace()
		w := p.peekWord()
		if w == "" || w == "strings" || w == "condition" {
			return nil
		}
		key, err := p.ident()
		if err != nil {
			return err
		}
		if err := p.expect("="); err != nil {
			return err
		}
		p.skipSpace()

		var value string
		switch c := p.peek(); {
		case c == '"':
			value, err = p.quoted()
			if err != nil {
				return err
			}
		case c == '-' || (c >= '0' && c <= '9'):
			start := p.pos
			p.pos++
			for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
				p.pos++
			}
			value = p.src[start:p.pos]
		default:
			value, err = p.ident()
			if err != nil {
				return err
			}
			if value != "true" && value != "false" {
				return p.errorf("invalid meta value %q", value)
			}
		}
		rule.Meta[key] = value
	}
}

func (p *parser) parseStrings(rule *Rule) error {
	seen := make(map[string]bool)
	anonymous := 0

	for {
		p.skipSpace()
		if p.peek() != '$' {
			return nil
		}
		p.pos++
		id := "$"
		if !p.eof() && isIdentChar(p.src[p.pos]) {
			start := p.pos
			for !p.eof() && isIdentChar(p.src[p.pos]) {
				p.pos++
			}
			id += p.src[start:p.pos]
		} else {
			anonymous++
			id = "$#" + strconv.Itoa(anonymous)
		}
		if seen[id] {
			return p.errorf("duplicate string identifier %s", id)
		}
		seen[id] = true

		if err := p.expect("="); err != nil {
			return err
		}
		p.skipSpace()

		def := StringDef{ID: id}
		var err error
		switch p.peek() {
		case '"':
			def.kind = kindText
			def.Value, err = p.quoted()
		case '/':
			def.kind = kindRegex
			def.Value, err = p.regex()
		case '{':
			var literal bool
			def.kind = kindHex
			def.Value, literal, err = p.hex()
			if literal {
				def.kind = kindText
			}
		default:
			err = p.errorf("expected string value for %s", id)
		}
		if err != nil {
			return err
		}
		if def.Value == "" {
			return p.errorf("empty string value for %s", id)
		}

		if err := p.parseModifiers(&def); err != nil {
			return err
		}
		rule.Strings = append(rule.Strings, def)
	}
}

func (p *parser) parseModifiers(def *StringDef) error {
	for {
		switch w := p.peekWord(); w {
		case "nocase":
			def.Nocase = true
		case "fullword":
			def.Fullword = true
		case "ascii", "private":
			// ascii is the default encoding; private only hides the string from output.
		case "wide", "xor", "base64", "base64wide":
			return p.errorf("%w: %s modifier", ErrUnsupported, w)
		default:
			return nil
		}
		p.consumeWord(p.peekWord())
	}
}

// quoted reads a double-quoted string and decodes its escapes.
func (p *parser) quoted() (string, error) {
	if p.peek() != '"' {
		return "", p.errorf("expected '\"'")
	}
	p.pos++

	var b strings.Builder
	for {
		if p.eof() || p.src[p.pos] == '\n' {
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteByte(e)
			case 'x':
				if p.pos+2 > len(p.src) {
					return "", p.errorf("invalid \\x escape")
				}
				v, err := strconv.ParseUint(p.src[p.pos:p.pos+2], 16, 8)
				if err != nil {
					return "", p.errorf("invalid \\x escape: %w", err)
				}
				b.WriteByte(byte(v))
				p.pos += 2
			default:
				return "", p.errorf("invalid escape \\%c", e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

// regex reads a /.../ literal with optional i and s flags and returns
// an equivalent Go regular expression.
func (p *parser) regex() (string, error) {
	p.pos++ // opening slash

	var b strings.Builder
	for {
		if p.eof() || p.src[p.pos] == '\n' {
			return "", p.errorf("unterminated regular expression")
		}
		c := p.src[p.pos]
		p.pos++
		if c == '\\' && !p.eof() {
			next := p.src[p.pos]
			p.pos++
			if next == '/' {
				b.WriteByte('/')
			} else {
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			continue
		}
		if c == '/' {
			break
		}
		b.WriteByte(c)
	}

	var flags string
	for !p.eof() && (p.src[p.pos] == 'i' || p.src[p.pos] == 's') {
		if !strings.ContainsRune(flags, rune(p.src[p.pos])) {
			flags += string(p.src[p.pos])
		}
		p.pos++
	}
	if flags != "" {
		return "(?" + flags + ")" + b.String(), nil
	}
	return b.String(), nil
}

// hex reads a { ... } hex string. A plain byte sequence is returned as a
// literal (literal == true) so it joins the Aho-Corasick automaton; anything
// with wildcards, jumps or alternatives is converted to a Go regular expression.
//
// Bytes above 0x7F in the regex form match the code point of the same value,
// because Go regular expressions operate on UTF-8 text.
func (p *parser) hex() (value string, literal bool, err error) {
	p.pos++ // opening brace

	var (
		b       strings.Builder
		raw     []byte
		complex bool
	)
	b.WriteString("(?s)")
	for {
		p.skipSpace()
		if p.eof() {
			return "", false, p.errorf("unterminated hex string")
		}
		c := p.src[p.pos]
		switch {
		case c == '}':
			p.pos++
			if len(raw) == 0 && !complex {
				return "", false, nil
			}
			if !complex {
				return string(raw), true, nil
			}
			return b.String(), false, nil
		case c == '(':
			b.WriteString("(?:")
			complex = true
			p.pos++
		case c == ')':
			b.WriteByte(')')
			p.pos++
		case c == '|':
			b.WriteByte('|')
			p.pos++
		case c == '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				return "", false, p.errorf("unterminated jump in hex string")
			}
			jump, err := hexJump(p.src[p.pos+1 : p.pos+end])
			if err != nil {
				return "", false, p.errorf("%w", err)
			}
			b.WriteString(jump)
			complex = true
			p.pos += end + 1
		case p.pos+1 < len(p.src):
			pair := p.src[p.pos : p.pos+2]
			switch {
			case pair == "??":
				b.WriteByte('.')
				complex = true
			case strings.Contains(pair, "?"):
				return "", false, p.errorf("%w: nibble wildcard %s", ErrUnsupported, pair)
			default:
				v, err := strconv.ParseUint(pair, 16, 8)
				if err != nil {
					return "", false, p.errorf("invalid hex byte %q", pair)
				}
				fmt.Fprintf(&b, `\x%02X`, v)
				raw = append(raw, byte(v))
			}
			p.pos += 2
		default:
			return "", false, p.errorf("invalid hex string")
		}
	}
}

// hexJump converts the inside of a [n-m] jump into a regex repetition.
func hexJump(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	lo, hi, ranged := strings.Cut(spec, "-")
	lo, hi = strings.TrimSpace(lo), strings.TrimSpace(hi)
	if !ranged {
		if _, err := strconv.Atoi(lo); err != nil {
			return "", errors.New("invalid jump " + spec)
		}
		return ".{" + lo + "}", nil
	}
	if lo == "" {
		lo = "0"
	}
	if _, err := strconv.Atoi(lo); err != nil {
		return "", errors.New("invalid jump " + spec)
	}
	if hi == "" {
		return ".{" + lo + ",}", nil
	}
	if _, err := strconv.Atoi(hi); err != nil {
		return "", errors.New("invalid jump " + spec)
	}
	return ".{" + lo + "," + hi + "}", nil
}

// parseCondition reads the condition up to the closing brace of the rule.
func (p *parser) parseCondition(rule *Rule) error {
	p.skipSpace()
	start := p.pos
	end := strings.IndexByte(p.src[p.pos:], '}')
	if end < 0 {
		return p.errorf("unterminated condition")
	}
	text := p.src[start : start+end]

	cond, err := compileCondition(text, rule.Strings)
	if err != nil {
		return p.errorf("%w", err)
	}
	rule.condition = cond
	p.pos = start + end
	return nil
}
