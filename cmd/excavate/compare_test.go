package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/excavate/internal/database"
	"github.com/nao1215/excavate/internal/model"
)

// seedStore stores two finished scans of the same target. The second one
// loses /old.html and gains /new.html. It returns the scan IDs, oldest first.
func seedStore(t *testing.T, dir string) (string, string) {
	t.Helper()

	store, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	scan := func(urls ...string) string {
		id, err := store.CreateScan(ctx, []string{"example.com"})
		if err != nil {
			t.Fatalf("failed to create scan: %v", err)
		}
		for _, u := range urls {
			ev, err := model.NewEvent(model.EventTypeURL, model.Text(u))
			if err != nil {
				t.Fatalf("failed to create event: %v", err)
			}
			if err := store.Emit(ctx, id, ev); err != nil {
				t.Fatalf("failed to emit event: %v", err)
			}
		}
		if err := store.FinishScan(ctx, id, map[string]int{"fetched": len(urls)}); err != nil {
			t.Fatalf("failed to finish scan: %v", err)
		}
		return id
	}

	first := scan("http://example.com/", "http://example.com/old.html")
	time.Sleep(2 * time.Millisecond)
	second := scan("http://example.com/", "http://example.com/new.html")
	return first, second
}

func runCompare(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewCompareCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestNewCompareCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCompareCmd()
	for _, name := range []string{"list", "db-dir", "json", "markdown"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if err := cmd.Args(cmd, []string{"a", "b", "c"}); err == nil {
		t.Error("expected at most two arguments")
	}
}

func TestRunCompareCmd(t *testing.T) {
	t.Parallel()

	// Subtests share one database file and run sequentially.
	dir := t.TempDir()
	first, second := seedStore(t, dir)

	t.Run("list", func(t *testing.T) {
		output, err := runCompare(t, "--db-dir", dir, "--list")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Index(output, second) > strings.Index(output, first) {
			t.Errorf("expected newest scan first, got %q", output)
		}
		if !strings.Contains(output, "example.com") {
			t.Errorf("expected targets in the list, got %q", output)
		}
	})

	t.Run("latest against previous", func(t *testing.T) {
		output, err := runCompare(t, "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "1 added, 1 removed, 1 unchanged") {
			t.Errorf("unexpected comparison %q", output)
		}
		if !strings.Contains(output, "+ URL") || !strings.Contains(output, "new.html") {
			t.Errorf("expected the added URL, got %q", output)
		}
		if !strings.Contains(output, "- URL") || !strings.Contains(output, "old.html") {
			t.Errorf("expected the removed URL, got %q", output)
		}
	})

	t.Run("explicit IDs as JSON", func(t *testing.T) {
		output, err := runCompare(t, "--db-dir", dir, "--json", second, first[:8])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var c struct {
			Base  struct{ ID string } `json:"base"`
			Other struct{ ID string } `json:"other"`
		}
		if err := json.Unmarshal([]byte(output), &c); err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		if c.Base.ID != second || c.Other.ID != first {
			t.Errorf("expected base %s and other %s, got %+v", second, first, c)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		output, err := runCompare(t, "--db-dir", dir, "--markdown", second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "# Excavate Scan Comparison") {
			t.Errorf("expected a Markdown comparison, got %q", output)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		if _, err := runCompare(t, "--db-dir", dir, "--json", "--markdown"); err == nil {
			t.Error("expected an error for conflicting formats")
		}
	})

	t.Run("first scan has no predecessor", func(t *testing.T) {
		_, err := runCompare(t, "--db-dir", dir, first)
		if !errors.Is(err, errNoPreviousScan) {
			t.Errorf("expected errNoPreviousScan, got %v", err)
		}
	})

	t.Run("unknown scan", func(t *testing.T) {
		_, err := runCompare(t, "--db-dir", dir, "ffffffff-0000")
		if !errors.Is(err, database.ErrScanNotFound) {
			t.Errorf("expected ErrScanNotFound, got %v", err)
		}
	})
}

func TestRunCompareCmdMissingDatabase(t *testing.T) {
	t.Parallel()

	_, err := runCompare(t, "--db-dir", t.TempDir(), "--list")
	if !errors.Is(err, database.ErrDatabaseNotFound) {
		t.Errorf("expected ErrDatabaseNotFound, got %v", err)
	}
}

func TestResolveScanID(t *testing.T) {
	t.Parallel()

	scans := []*database.Scan{
		{ID: "abcd1111-0000"},
		{ID: "abcd2222-0000"},
		{ID: "ef001234-0000"},
	}

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr error
	}{
		{name: "exact", id: "abcd1111-0000", want: "abcd1111-0000"},
		{name: "unique prefix", id: "EF00", want: "ef001234-0000"},
		{name: "ambiguous prefix", id: "abcd", wantErr: errAmbiguousScanID},
		{name: "prefix too short", id: "ef0", wantErr: database.ErrScanNotFound},
		{name: "unknown", id: "9999", wantErr: database.ErrScanNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveScanID(scans, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.ID)
			}
		})
	}
}

func TestPreviousScan(t *testing.T) {
	t.Parallel()

	now := time.Now()
	scans := []*database.Scan{
		{ID: "c", Targets: []string{"a.example"}, StartedAt: now},
		{ID: "b", Targets: []string{"b.example"}, StartedAt: now.Add(-time.Hour)},
		{ID: "a", Targets: []string{"a.example"}, StartedAt: now.Add(-2 * time.Hour)},
	}

	prev, err := previousScan(scans, scans[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prev.ID != "a" {
		t.Errorf("expected scan a, got %s", prev.ID)
	}

	if _, err := previousScan(scans, scans[1]); !errors.Is(err, errNoPreviousScan) {
		t.Errorf("expected errNoPreviousScan, got %v", err)
	}
}
