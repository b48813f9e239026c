package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/excavate/internal/signature"
)

const apiPathsRule = `
rule APIPaths {
    meta:
        description = "API endpoint"
        category = "url"
    strings:
        $api = /\/api\/v[0-9]+\/[a-z]+/
    condition:
        $api
}`

// runRulesCmd executes the rules command with args and returns its output.
func runRulesCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRulesCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRulesValidate(t *testing.T) {
	t.Parallel()

	t.Run("rule source", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "api.yar", apiPathsRule+"\n"+searchForTextRule)
		output, err := runRulesCmd(t, "validate", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "2 rule(s) OK") {
			t.Errorf("expected 2 rules, got %q", output)
		}
		if !strings.Contains(output, "APIPaths") || !strings.Contains(output, "url") {
			t.Errorf("expected the rule name and category, got %q", output)
		}
	})

	t.Run("configuration file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		writeFile(t, dir, "rules/api.yar", apiPathsRule)
		path := writeFile(t, dir, "config.yaml", `
rules:
  - name: APIPaths
    file: rules/api.yar
  - name: SearchForText
    source: |
      rule SearchForText { strings: $a = "AAAA" condition: $a }
`)
		output, err := runRulesCmd(t, "validate", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "2 rule(s) OK") {
			t.Errorf("expected 2 rules, got %q", output)
		}
	})

	t.Run("malformed rule", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "broken.yar", `rule Broken { strings: $a = "x" }`)
		_, err := runRulesCmd(t, "validate", path)
		var compileErr *signature.RuleCompileError
		if !errors.As(err, &compileErr) {
			t.Errorf("expected RuleCompileError, got %v", err)
		}
	})

	t.Run("configuration without rules", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "config.yml", "web_spider_depth: 2\n")
		_, err := runRulesCmd(t, "validate", path)
		if !errors.Is(err, errNoRules) {
			t.Errorf("expected errNoRules, got %v", err)
		}
	})

	t.Run("requires a file", func(t *testing.T) {
		t.Parallel()

		if _, err := runRulesCmd(t, "validate"); err == nil {
			t.Error("expected an error without arguments")
		}
	})
}

func TestRulesTest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rules := writeFile(t, dir, "api.yar", apiPathsRule)
	input := writeFile(t, dir, "page.html", `<script>fetch("/api/v2/users")</script>`)

	output, err := runRulesCmd(t, "test", rules, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "APIPaths: API endpoint") {
		t.Errorf("expected the rule to match, got %q", output)
	}
	if !strings.Contains(output, `"/api/v2/users"`) {
		t.Errorf("expected the matched text, got %q", output)
	}
	if !strings.Contains(output, "1 match(es)") {
		t.Errorf("expected one match, got %q", output)
	}
}

func TestRulesList(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "config.yaml", "rules:\n  - name: APIPaths\n    source: |\n"+indent(apiPathsRule, "      "))

	output, err := runRulesCmd(t, "list", "--config", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Techniques:", "links", "redirect", "Rules:", "EmailAddress", "APIPaths"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got %q", want, output)
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}
