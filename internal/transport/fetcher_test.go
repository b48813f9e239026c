package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/excavate/internal/model"
)

func target(t *testing.T, raw string) *model.Event {
	t.Helper()
	ev, err := model.NewEvent(model.EventTypeURLUnverified, model.Text(raw))
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return ev
}

func newFetcher(t *testing.T, opts ...FetcherOption) *Fetcher {
	t.Helper()
	f, err := NewFetcher(opts...)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestNewFetcherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewFetcher(WithRequestsPerSecond(-1)); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := NewFetcher(WithProxy("127.0.0.1")); !errors.Is(err, ErrInvalidProxyAddress) {
		t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
	}
	if _, err := NewFetcher(WithProxy("127.0.0.1:9050"), WithRequestsPerSecond(2.5)); err != nil {
		t.Errorf("expected valid options to be accepted, got %v", err)
	}
}

func TestFetchDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next.html", http.StatusFound)
			return
		}
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer server.Close()

	ev := target(t, server.URL+"/")
	tx, err := newFetcher(t).Fetch(context.Background(), ev)
	if err != nil {
		t.Fatalf("failed to fetch: %v", err)
	}

	if tx.StatusCode != http.StatusFound {
		t.Errorf("expected status 302, got %d", tx.StatusCode)
	}
	if tx.Location() != "/next.html" {
		t.Errorf("expected Location /next.html, got %q", tx.Location())
	}
	if !tx.IsRedirect() {
		t.Error("expected the transaction to be a redirect")
	}
	if tx.Source != ev {
		t.Error("expected the transaction source to be the target event")
	}
}

func TestFetchTransaction(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "excavate-test" {
			t.Errorf("expected User-Agent excavate-test, got %q", got)
		}
		if got := r.Header.Get("X-Scan"); got != "1" {
			t.Errorf("expected X-Scan header, got %q", got)
		}
		if got := r.Header.Get("Cookie"); got != "session=abc" {
			t.Errorf("expected cookie, got %q", got)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", "script-src asdf.test.notreal")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer server.Close()

	f := newFetcher(t,
		WithUserAgent("excavate-test"),
		WithHeaders(map[string]string{"X-Scan": "1"}),
		WithCookie("session=abc"),
	)
	tx, err := f.Fetch(context.Background(), target(t, server.URL+"/"))
	if err != nil {
		t.Fatalf("failed to fetch: %v", err)
	}

	if tx.ContentType != "text/html" {
		t.Errorf("expected content type text/html, got %q", tx.ContentType)
	}
	if string(tx.Body) != "<html>hello</html>" {
		t.Errorf("unexpected body %q", tx.Body)
	}
	if tx.Hash == "" {
		t.Error("expected the body hash to be set")
	}
	if tx.GetHeader("content-security-policy") != "script-src asdf.test.notreal" {
		t.Errorf("expected the CSP header to be kept, got %v", tx.Headers)
	}
}

func TestFetchDecodesCharset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{name: "header charset", contentType: "text/html; charset=windows-1252", body: "caf\xe9", want: "café"},
		{name: "meta charset", contentType: "text/html", body: `<meta charset="iso-8859-1">caf` + "\xe9", want: `<meta charset="iso-8859-1">café`},
		{name: "utf-8 untouched", contentType: "text/html; charset=utf-8", body: "café", want: "café"},
		{name: "json charset", contentType: "application/json; charset=iso-8859-1", body: `{"a":"caf` + "\xe9" + `"}`, want: `{"a":"café"}`},
		{name: "binary untouched", contentType: "image/png", body: "\x89PNG\xe9", want: "\x89PNG\xe9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tx, err := newFetcher(t).Fetch(context.Background(), target(t, server.URL+"/"))
			if err != nil {
				t.Fatalf("failed to fetch: %v", err)
			}
			if string(tx.Body) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tx.Body)
			}
		})
	}
}

func TestFetchBodyLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer server.Close()

	tx, err := newFetcher(t, WithMaxBodySize(10)).Fetch(context.Background(), target(t, server.URL+"/"))
	if err != nil {
		t.Fatalf("failed to fetch: %v", err)
	}
	if len(tx.Body) != 10 {
		t.Errorf("expected 10 bytes, got %d", len(tx.Body))
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	f := newFetcher(t)

	if _, err := f.Fetch(context.Background(), nil); !errors.Is(err, ErrNilTarget) {
		t.Errorf("expected ErrNilTarget, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, target(t, "http://127.0.0.1:1/")); err == nil {
		t.Error("expected an error for a canceled context")
	}
}
