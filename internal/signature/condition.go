package signature

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// hitCounts maps a string ID to the number of times it matched.
type hitCounts map[string]int

// condition is a compiled rule condition.
type condition interface {
	eval(hits hitCounts) bool
}

type boolCond bool

func (b boolCond) eval(hitCounts) bool { return bool(b) }

type stringCond string

func (s stringCond) eval(h hitCounts) bool { return h[string(s)] > 0 }

type notCond struct{ inner condition }

func (n notCond) eval(h hitCounts) bool { return !n.inner.eval(h) }

type andCond struct{ left, right condition }

func (a andCond) eval(h hitCounts) bool { return a.left.eval(h) && a.right.eval(h) }

type orCond struct{ left, right condition }

func (o orCond) eval(h hitCounts) bool { return o.left.eval(h) || o.right.eval(h) }

// countCond implements "#a > 2" style comparisons.
type countCond struct {
	id string
	op string
	n  int
}

func (c countCond) eval(h hitCounts) bool {
	count := h[c.id]
	switch c.op {
	case "==":
		return count == c.n
	case "!=":
		return count != c.n
	case ">":
		return count > c.n
	case ">=":
		return count >= c.n
	case "<":
		return count < c.n
	case "<=":
		return count <= c.n
	default:
		return false
	}
}

// ofCond implements "any of them", "all of ($a*)", "2 of ($a, $b)" and "none of them".
// need is the required number of matching strings; -1 means all, 0 with none set means none.
type ofCond struct {
	ids  []string
	need int
	none bool
}

func (o ofCond) eval(h hitCounts) bool {
	matched := 0
	for _, id := range o.ids {
		if h[id] > 0 {
			matched++
		}
	}
	switch {
	case o.none:
		return matched == 0
	case o.need < 0:
		return matched == len(o.ids)
	default:
		return matched >= o.need
	}
}

// condToken is one token of a condition.
type condToken struct {
	kind  string // "word", "string", "count", "number", "op", "punct"
	value string
}

// tokenizeCondition splits a condition into tokens.
func tokenizeCondition(text string) ([]condToken, error) {
	var tokens []condToken
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '$' || c == '#':
			start := i
			i++
			for i < len(text) && isIdentChar(text[i]) {
				i++
			}
			if i < len(text) && text[i] == '*' && c == '$' {
				i++
			}
			kind := "string"
			if c == '#' {
				kind = "count"
			}
			tokens = append(tokens, condToken{kind: kind, value: text[start:i]})
		case c >= '0' && c <= '9':
			start := i
			for i < len(text) && text[i] >= '0' && text[i] <= '9' {
				i++
			}
			tokens = append(tokens, condToken{kind: "number", value: text[start:i]})
		case isIdentStart(c):
			start := i
			for i < len(text) && isIdentChar(text[i]) {
				i++
			}
			tokens = append(tokens, condToken{kind: "word", value: text[start:i]})
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, condToken{kind: "punct", value: string(c)})
			i++
		case c == '=' || c == '!' || c == '<' || c == '>':
			if i+1 < len(text) && text[i+1] == '=' {
				tokens = append(tokens, condToken{kind: "op", value: text[i : i+2]})
				i += 2
				continue
			}
			if c == '=' || c == '!' {
				return nil, fmt.Errorf("invalid operator %q in condition", string(c))
			}
			tokens = append(tokens, condToken{kind: "op", value: string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in condition", string(c))
		}
	}
	return tokens, nil
}

// condParser parses condition tokens against the strings declared by the rule.
type condParser struct {
	tokens []condToken
	pos    int
	ids    []string
}

// compileCondition parses a condition expression.
func compileCondition(text string, strs []StringDef) (condition, error) {
	tokens, err := tokenizeCondition(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.New("empty condition")
	}

	ids := make([]string, 0, len(strs))
	for _, s := range strs {
		ids = append(ids, s.ID)
	}

	p := &condParser{tokens: tokens, ids: ids}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q in condition", p.tokens[p.pos].value)
	}
	return cond, nil
}

func (p *condParser) peek() (condToken, bool) {
	if p.pos >= len(p.tokens) {
		return condToken{}, false
	}
	return p.tokens[p.pos], true
}

func (p *condParser) next() (condToken, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func (p *condParser) acceptWord(w string) bool {
	if tok, ok := p.peek(); ok && tok.kind == "word" && tok.value == w {
		p.pos++
		return true
	}
	return false
}

func (p *condParser) acceptPunct(v string) bool {
	if tok, ok := p.peek(); ok && tok.kind == "punct" && tok.value == v {
		p.pos++
		return true
	}
	return false
}

func (p *condParser) parseOr() (condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptWord("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orCond{left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (condition, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptWord("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andCond{left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseUnary() (condition, error) {
	if p.acceptWord("not") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notCond{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (condition, error) {
	tok, ok := p.next()
	if !ok {
		return nil, errors.New("unexpected end of condition")
	}

	switch tok.kind {
	case "punct":
		if tok.value != "(" {
			return nil, fmt.Errorf("unexpected %q in condition", tok.value)
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.acceptPunct(")") {
			return nil, errors.New("missing ')' in condition")
		}
		return inner, nil

	case "string":
		if strings.HasSuffix(tok.value, "*") {
			return nil, fmt.Errorf("wildcard %s is only valid inside an 'of' set", tok.value)
		}
		if err := p.checkID(tok.value); err != nil {
			return nil, err
		}
		if next, ok := p.peek(); ok && next.kind == "word" && (next.value == "at" || next.value == "in") {
			return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, tok.value, next.value)
		}
		return stringCond(tok.value), nil

	case "count":
		id := "$" + strings.TrimPrefix(tok.value, "#")
		if err := p.checkID(id); err != nil {
			return nil, err
		}
		op, ok := p.next()
		if !ok || op.kind != "op" {
			return nil, fmt.Errorf("expected comparison after %s", tok.value)
		}
		num, ok := p.next()
		if !ok || num.kind != "number" {
			return nil, fmt.Errorf("expected number after %s %s", tok.value, op.value)
		}
		n, err := strconv.Atoi(num.value)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", num.value, err)
		}
		return countCond{id: id, op: op.value, n: n}, nil

	case "number":
		n, err := strconv.Atoi(tok.value)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", tok.value, err)
		}
		return p.parseOf(ofCond{need: n})

	case "word":
		switch tok.value {
		case "true":
			return boolCond(true), nil
		case "false":
			return boolCond(false), nil
		case "any":
			return p.parseOf(ofCond{need: 1})
		case "all":
			return p.parseOf(ofCond{need: -1})
		case "none":
			return p.parseOf(ofCond{none: true})
		default:
			return nil, fmt.Errorf("%w: %q in condition", ErrUnsupported, tok.value)
		}
	}

	return nil, fmt.Errorf("unexpected %q in condition", tok.value)
}

// parseOf parses the "of <set>" tail of a quantifier.
func (p *condParser) parseOf(cond ofCond) (condition, error) {
	if !p.acceptWord("of") {
		return nil, errors.New("expected 'of' after quantifier")
	}

	if p.acceptWord("them") {
		if len(p.ids) == 0 {
			return nil, errors.New("'them' used in a rule without strings")
		}
		cond.ids = append([]string(nil), p.ids...)
		return cond, nil
	}

	if !p.acceptPunct("(") {
		return nil, errors.New("expected 'them' or '(' after 'of'")
	}
	for {
		tok, ok := p.next()
		if !ok || tok.kind != "string" {
			return nil, errors.New("expected string identifier in 'of' set")
		}
		ids, err := p.expand(tok.value)
		if err != nil {
			return nil, err
		}
		cond.ids = append(cond.ids, ids...)
		if p.acceptPunct(")") {
			break
		}
		if !p.acceptPunct(",") {
			return nil, errors.New("expected ',' or ')' in 'of' set")
		}
	}
	return cond, nil
}

// expand resolves "$a" or "$a*" to declared string IDs.
func (p *condParser) expand(ref string) ([]string, error) {
	prefix, wildcard := strings.CutSuffix(ref, "*")
	if !wildcard {
		if err := p.checkID(ref); err != nil {
			return nil, err
		}
		return []string{ref}, nil
	}

	var out []string
	for _, id := range p.ids {
		if strings.HasPrefix(id, prefix) && !strings.HasPrefix(id, "$#") {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s matches no declared string", ref)
	}
	return out, nil
}

func (p *condParser) checkID(id string) error {
	for _, declared := range p.ids {
		if declared == id {
			return nil
		}
	}
	return fmt.Errorf("undefined string identifier %s", id)
}
