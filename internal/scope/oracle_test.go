package scope

import (
	"errors"
	"net/url"
	"slices"
	"sync"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

func TestTargetOracleScopeDistance(t *testing.T) {
	t.Parallel()

	oracle, err := NewTargetOracle(
		"http://127.0.0.1:8888/",
		"test.notreal",
		"http://127.0.0.1:8888/subdir/links.html",
		"10.1.0.0/16",
		"[::1]",
	)
	if err != nil {
		t.Fatalf("failed to create oracle: %v", err)
	}

	tests := []struct {
		url  string
		want int
	}{
		{url: "http://127.0.0.1:8888/relative.html", want: 0},
		{url: "ftp://127.0.0.1:2121", want: 0},
		{url: "smb://127.0.0.1", want: 0},
		{url: "ssh://127.0.0.2", want: OutOfScope},
		{url: "https://www1.test.notreal/", want: 0},
		{url: "https://TEST.notreal./", want: 0},
		{url: "https://notreal/", want: OutOfScope},
		{url: "https://eviltest.notreal/", want: OutOfScope},
		{url: "http://10.1.200.3/", want: 0},
		{url: "http://10.2.0.1/", want: OutOfScope},
		{url: "http://[::1]:8080/", want: 0},
		{url: "https://www.example.com/", want: OutOfScope},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			if got := oracle.ScopeDistance(mustURL(t, tt.url)); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestTargetOracleNilURL(t *testing.T) {
	t.Parallel()

	oracle, err := NewTargetOracle("test.notreal")
	if err != nil {
		t.Fatalf("failed to create oracle: %v", err)
	}
	if got := oracle.ScopeDistance(nil); got != OutOfScope {
		t.Errorf("expected %d, got %d", OutOfScope, got)
	}
}

func TestTargetOracleInvalidTargets(t *testing.T) {
	t.Parallel()

	oracle, err := NewTargetOracle("test.notreal", "", "http://a b/")
	if !errors.Is(err, ErrEmptyTarget) {
		t.Errorf("expected ErrEmptyTarget, got %v", err)
	}
	if !oracle.InScope("www.test.notreal") {
		t.Error("expected valid targets to be kept")
	}

	if err := oracle.Add("bad host/"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}

	want := []string{"test.notreal"}
	if got := oracle.Targets(); !slices.Equal(got, want) {
		t.Errorf("expected targets %v, got %v", want, got)
	}
}

func TestTargetHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target string
		want   string
	}{
		{target: "http://127.0.0.1:8888/subdir/", want: "127.0.0.1"},
		{target: "127.0.0.1:8888", want: "127.0.0.1"},
		{target: "Test.NotReal.", want: "test.notreal"},
		{target: "example.com/path", want: "example.com"},
		{target: "example.com:443", want: "example.com"},
		{target: "[::1]", want: "::1"},
		{target: "https://[::1]:8443/", want: "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()

			if got := TargetHost(tt.target); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTargetOracleConcurrentAccess(t *testing.T) {
	t.Parallel()

	oracle, err := NewTargetOracle("test.notreal")
	if err != nil {
		t.Fatalf("failed to create oracle: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = oracle.Add("host" + string(rune('a'+i)) + ".example")
		}()
		go func() {
			defer wg.Done()
			_ = oracle.InScope("www.test.notreal")
		}()
	}
	wg.Wait()

	if len(oracle.Targets()) != 11 {
		t.Errorf("expected 11 targets, got %d", len(oracle.Targets()))
	}
}
