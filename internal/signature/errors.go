package signature

import (
	"errors"
	"fmt"
)

// Rule errors.
var (
	// ErrEmptyRuleSource is returned when a source declares no rule at all.
	ErrEmptyRuleSource = errors.New("rule source is empty")

	// ErrRuleNotDeclared is returned when a source registered under a name
	// does not declare a rule with that name.
	ErrRuleNotDeclared = errors.New("rule source does not declare the registered rule")

	// ErrDuplicateRule is returned when two sources declare the same rule name.
	ErrDuplicateRule = errors.New("duplicate rule name")

	// ErrUnsupported is returned for YARA features outside the supported subset
	// (imports, wide strings, xor, base64, offsets...).
	ErrUnsupported = errors.New("unsupported rule feature")
)

// RuleCompileError describes a rule that could not be compiled.
// It is returned by Compile and Registry.Add; use errors.As to inspect it.
type RuleCompileError struct {
	// Rule is the name the source was registered under.
	Rule string

	// Line is the 1-based line in the source where the problem was found.
	// Zero when the error is not tied to a position.
	Line int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RuleCompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("rule %s: line %d: %v", e.Rule, e.Line, e.Err)
	}
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RuleCompileError) Unwrap() error {
	return e.Err
}
