package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/excavate/internal/config"
	"github.com/nao1215/excavate/internal/excavate"
	"github.com/nao1215/excavate/internal/scope"
	"github.com/nao1215/excavate/internal/signature"
	"github.com/nao1215/excavate/internal/spider"
	"github.com/spf13/cobra"
)

// errNoRules is returned when a rule file declares no rule.
var errNoRules = errors.New("no rules found")

// NewRulesCmd creates the rules command and its subcommands.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate signature rules",
		Long: `Rules works with the signature rules used to find things in responses.

A rule file is either a rule source (.yar, .yara or any other extension)
or a configuration file (.yaml, .yml) whose "rules" list is checked.

Examples:
  # Check a rule source
  excavate rules validate rules/api.yar

  # Check the rules of a configuration file
  excavate rules validate .excavate.yaml

  # Run rules over a saved response body
  excavate rules test rules/api.yar page.html

  # List the extraction techniques and rules of a scan
  excavate rules list`,
	}

	cmd.AddCommand(newRulesValidateCmd())
	cmd.AddCommand(newRulesTestCmd())
	cmd.AddCommand(newRulesListCmd())

	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a rule file compiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRuleFile(args[0])
			if err != nil {
				return err
			}
			writeRules(cmd.OutOrStdout(), rs.Rules())
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d rule(s) OK\n", rs.Len())
			return nil
		},
	}
}

func newRulesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <rule-file> <input-file>",
		Short: "Run rules over a file and print the matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRuleFile(args[0])
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[1]) //nolint:gosec // user-provided input file
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			out := cmd.OutOrStdout()
			matches := rs.Scan(string(input))
			for _, m := range matches {
				fmt.Fprintf(out, "%s: %s\n", m.Rule, m.Description)
				for _, data := range m.Data() {
					fmt.Fprintf(out, "  %q\n", data)
				}
			}
			fmt.Fprintf(out, "%d match(es)\n", len(matches))
			return nil
		},
	}
}

func newRulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List extraction techniques and signature rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			cfg := config.NewConfig()
			if path := config.FindConfigFile(configPath); path != "" {
				if cfg, err = config.LoadConfigFile(path); err != nil {
					return err
				}
			} else if configPath != "" {
				return fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
			}

			engine, err := newRuleEngine(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Techniques:")
			for _, name := range engine.Techniques() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintln(out, "\nRules:")
			for _, name := range engine.Rules() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Configuration file path")
	return cmd
}

// newRuleEngine creates an engine with the built-in rules and the custom
// rules of cfg.
func newRuleEngine(cfg *config.Config) (*excavate.Engine, error) {
	oracle, err := scope.NewTargetOracle()
	if err != nil {
		return nil, err
	}
	engine, err := excavate.NewEngine(spider.NewTracker(oracle), excavate.NewMemorySink())
	if err != nil {
		return nil, err
	}

	rules, err := cfg.LoadRules()
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if err := engine.AddRule(r.Name, r.Source, nil); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// loadRuleFile compiles a rule source or the rules of a configuration file.
func loadRuleFile(path string) (*signature.Ruleset, error) {
	sources := make(map[string]string)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		rules, err := cfg.LoadRules()
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			sources[r.Name] = r.Source
		}
	default:
		data, err := os.ReadFile(path) //nolint:gosec // user-provided rule file
		if err != nil {
			return nil, fmt.Errorf("failed to read rule file: %w", err)
		}
		declared, err := signature.Parse(filepath.Base(path), string(data))
		if err != nil {
			return nil, err
		}
		if len(declared) > 0 {
			sources[declared[0].Name] = string(data)
		}
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoRules, path)
	}
	return signature.Compile(sources)
}

// writeRules prints one line per rule.
func writeRules(w io.Writer, rules []*signature.Rule) {
	for _, r := range rules {
		category := r.Meta[excavate.MetaCategory]
		if category == "" {
			category = "finding"
		}
		desc := r.Description()
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(w, "%-24s %-10s %d string(s)  %s\n", r.Name, category, len(r.Strings), desc)
	}
}
