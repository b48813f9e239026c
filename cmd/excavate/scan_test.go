package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/excavate/internal/config"
	"github.com/nao1215/excavate/internal/database"
	"github.com/nao1215/excavate/internal/model"
	"github.com/nao1215/excavate/internal/pipeline"
	"github.com/nao1215/excavate/internal/transport"
)

const searchForTextRule = `
rule SearchForText {
    meta:
        description = "Contains the text AAAABBBBCCCC"
    strings:
        $text = "AAAABBBBCCCC"
    condition:
        $text
}`

// newTestSite serves a root page linking to /a.html, which carries the
// text of searchForTextRule.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><a href="/a.html">a</a> <a href="https://elsewhere.test/x">x</a></html>`)
	})
	mux.HandleFunc("/a.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><p>AAAABBBBCCCC</p></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestNewScanCmd tests the scan command creation.
func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "scan [target...]" {
			t.Errorf("expected use 'scan [target...]', got %q", cmd.Use)
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "config", shorthand: "c", defValue: ""},
		{name: "distance", shorthand: "D", defValue: "0"},
		{name: "depth", shorthand: "d", defValue: "1"},
		{name: "links-per-page", defValue: "25"},
		{name: "max-pages", shorthand: "p", defValue: "0"},
		{name: "concurrency", shorthand: "n", defValue: "10"},
		{name: "timeout", shorthand: "t", defValue: "10s"},
		{name: "proxy", shorthand: "x", defValue: ""},
		{name: "embedded-tor", defValue: "false"},
		{name: "save", defValue: "false"},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "output", shorthand: "o", defValue: ""},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("builds config with default values", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(NewScanCmd(), []string{"example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "example.com" {
			t.Errorf("expected targets [example.com], got %v", cfg.Targets)
		}
		if cfg.WebSpiderDepth != config.DefaultWebSpiderDepth {
			t.Errorf("expected default depth, got %d", cfg.WebSpiderDepth)
		}
		if cfg.TorProxy != "" {
			t.Errorf("expected no proxy, got %q", cfg.TorProxy)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-D", "2", "-d", "4", "--proxy", "127.0.0.1:9050", "--json", "--rate", "2.5"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.WebSpiderDistance != 2 || cfg.WebSpiderDepth != 4 {
			t.Errorf("expected distance 2 and depth 4, got %d and %d", cfg.WebSpiderDistance, cfg.WebSpiderDepth)
		}
		if cfg.TorProxy != "127.0.0.1:9050" {
			t.Errorf("expected proxy 127.0.0.1:9050, got %q", cfg.TorProxy)
		}
		if !cfg.JSONReport {
			t.Error("expected JSONReport to be true")
		}
		if cfg.RequestsPerSecond != 2.5 {
			t.Errorf("expected rate 2.5, got %v", cfg.RequestsPerSecond)
		}
	})

	t.Run("config file values survive unset flags", func(t *testing.T) {
		t.Parallel()

		configFile := filepath.Join(t.TempDir(), "config.yaml")
		content := "web_spider_distance: 3\nweb_spider_depth: 5\ntargets: [from-file.example]\n"
		if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", configFile, "--depth", "2"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.WebSpiderDistance != 3 {
			t.Errorf("expected distance 3 from the file, got %d", cfg.WebSpiderDistance)
		}
		if cfg.WebSpiderDepth != 2 {
			t.Errorf("expected depth 2 from the flag, got %d", cfg.WebSpiderDepth)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "from-file.example" {
			t.Errorf("expected targets from the file, got %v", cfg.Targets)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		_, err := buildConfig(cmd, []string{"example.com"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid config file", func(t *testing.T) {
		t.Parallel()

		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("invalid: yaml: content: ["), 0600); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--config", configFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, []string{"example.com"}); err == nil {
			t.Error("expected error for invalid config file")
		}
	})

	t.Run("targets from list file", func(t *testing.T) {
		t.Parallel()

		listFile := filepath.Join(t.TempDir(), "targets.txt")
		if err := os.WriteFile(listFile, []byte("# comment\nb.example\n\n  c.example  \n"), 0600); err != nil {
			t.Fatalf("failed to create list file: %v", err)
		}
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--list", listFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"a.example"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a.example", "b.example", "c.example"}
		if strings.Join(cfg.Targets, ",") != strings.Join(want, ",") {
			t.Errorf("expected targets %v, got %v", want, cfg.Targets)
		}
	})
}

func TestRunScanCmdConflictingFormats(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()
	cmd.SetArgs([]string{"--json", "--markdown", "example.com"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	if !errors.Is(err, config.ErrConflictingReportFormats) {
		t.Errorf("expected ErrConflictingReportFormats, got %v", err)
	}
}

func TestRunScan(t *testing.T) {
	t.Parallel()

	server := newTestSite(t)

	cfg := config.NewConfig()
	cfg.Targets = []string{server.URL}
	cfg.WebSpiderDistance = 1
	cfg.SaveToDB = true
	cfg.DBDir = t.TempDir()
	cfg.JSONReport = true
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.Rules = []config.Rule{{Name: "SearchForText", Source: searchForTextRule}}

	var out bytes.Buffer
	if err := runScan(context.Background(), cfg, &out, discardLogger()); err != nil {
		t.Fatalf("failed to run scan: %v", err)
	}

	var result struct {
		Counts map[string]int `json:"counts"`
		Report struct {
			ScanID       string `json:"scan_id"`
			PagesFetched int    `json:"pages_fetched"`
		} `json:"report"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode report: %v\n%s", err, out.String())
	}
	if result.Report.PagesFetched != 2 {
		t.Errorf("expected 2 pages fetched, got %d", result.Report.PagesFetched)
	}
	if result.Report.ScanID == "" {
		t.Fatal("expected a scan ID")
	}
	if result.Counts[string(model.EventTypeURL)] != 2 {
		t.Errorf("expected 2 URL events, got %v", result.Counts)
	}

	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	scan, err := store.Scan(context.Background(), result.Report.ScanID)
	if err != nil {
		t.Fatalf("failed to load scan: %v", err)
	}
	if scan.FinishedAt.IsZero() {
		t.Error("expected the scan to be finished")
	}

	events, err := store.Events(context.Background(), result.Report.ScanID)
	if err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	var finding, external bool
	for _, ev := range events {
		switch ev.Type {
		case model.EventTypeFinding:
			if f, ok := ev.Data.(model.Finding); ok && strings.Contains(f.Description, "Contains the text AAAABBBBCCCC") {
				finding = true
			}
		case model.EventTypeURLUnverified:
			if ev.String() == "https://elsewhere.test/x" && ev.ScopeDistance == 1 {
				external = true
			}
		}
	}
	if !finding {
		t.Error("expected a finding from the custom rule")
	}
	if !external {
		t.Error("expected the out-of-scope link as URL_UNVERIFIED at scope distance 1")
	}
}

func TestRunScanIsolated(t *testing.T) {
	t.Parallel()

	first := newTestSite(t)
	second := newTestSite(t)

	cfg := config.NewConfig()
	cfg.Targets = []string{first.URL, second.URL}
	cfg.Isolate = true
	cfg.SaveToDB = false

	var out bytes.Buffer
	if err := runScan(context.Background(), cfg, &out, discardLogger()); err != nil {
		t.Fatalf("failed to run scan: %v", err)
	}
	if n := strings.Count(out.String(), "EXCAVATE REPORT"); n != 2 {
		t.Errorf("expected 2 reports, got %d", n)
	}
	if !strings.Contains(out.String(), first.URL) || !strings.Contains(out.String(), second.URL) {
		t.Error("expected both targets in the output")
	}
}

func TestRunScanReportFile(t *testing.T) {
	t.Parallel()

	server := newTestSite(t)
	reportFile := filepath.Join(t.TempDir(), "reports", "scan.md")

	cfg := config.NewConfig()
	cfg.Targets = []string{server.URL}
	cfg.MarkdownReport = true
	cfg.ReportFile = reportFile

	var out bytes.Buffer
	if err := runScan(context.Background(), cfg, &out, discardLogger()); err != nil {
		t.Fatalf("failed to run scan: %v", err)
	}

	content, err := os.ReadFile(reportFile)
	if err != nil {
		t.Fatalf("failed to read report file: %v", err)
	}
	if !strings.Contains(string(content), "# ") {
		t.Error("expected a Markdown report in the file")
	}
	if !strings.Contains(out.String(), "EXCAVATE REPORT") {
		t.Error("expected a text summary on stdout")
	}

	info, err := os.Stat(reportFile)
	if err != nil {
		t.Fatalf("failed to stat report file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permissions 0600, got %o", perm)
	}
}

func TestRunScanErrors(t *testing.T) {
	t.Parallel()

	t.Run("unreachable proxy", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.Targets = []string{"example.com"}
		cfg.TorProxy = "127.0.0.1:1"

		err := runScan(context.Background(), cfg, io.Discard, discardLogger())
		if !errors.Is(err, transport.ErrProxyCannotConnect) {
			t.Errorf("expected ErrProxyCannotConnect, got %v", err)
		}
	})

	t.Run("no valid targets", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.Targets = []string{"http://"}

		err := runScan(context.Background(), cfg, io.Discard, discardLogger())
		if !errors.Is(err, pipeline.ErrNoSeeds) {
			t.Errorf("expected ErrNoSeeds, got %v", err)
		}
	})

	t.Run("bad custom rule", func(t *testing.T) {
		t.Parallel()

		server := newTestSite(t)
		cfg := config.NewConfig()
		cfg.Targets = []string{server.URL}
		cfg.Rules = []config.Rule{{Name: "Broken", Source: `rule Broken { strings: $a = "x" }`}}

		err := runScan(context.Background(), cfg, io.Discard, discardLogger())
		if err == nil {
			t.Error("expected an error for a rule without condition")
		}
	})
}

func TestReadTargetsFile(t *testing.T) {
	t.Parallel()

	if _, err := readTargetsFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
