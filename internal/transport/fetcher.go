package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/excavate/internal/model"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

// Defaults of a Fetcher.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; excavate/1.0)"
)

// Fetcher performs GET requests and returns them as transactions.
// It is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	userAgent   string
	maxBodySize int64
	timeout     time.Duration
	rps         float64
	proxyAddr   string
	insecureTLS bool
	headers     map[string]string
	cookie      string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the number of body bytes read per response.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithRequestsPerSecond limits the request rate across all workers.
// Zero means unlimited.
func WithRequestsPerSecond(rps float64) FetcherOption {
	return func(f *Fetcher) {
		f.rps = rps
	}
}

// WithProxy routes every request through the SOCKS5 proxy at address
// ("host:port").
func WithProxy(address string) FetcherOption {
	return func(f *Fetcher) {
		f.proxyAddr = address
	}
}

// WithInsecureTLS disables certificate verification. Onion services and
// internal hosts commonly use self-signed certificates.
func WithInsecureTLS(insecure bool) FetcherOption {
	return func(f *Fetcher) {
		f.insecureTLS = insecure
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) FetcherOption {
	return func(f *Fetcher) {
		f.headers = maps.Clone(headers)
	}
}

// WithCookie sends a raw cookie string ("session=abc") with every request.
func WithCookie(cookie string) FetcherOption {
	return func(f *Fetcher) {
		f.cookie = cookie
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher. The proxy, if any, is not contacted until
// the first request; use CheckProxy to verify it up front.
func NewFetcher(opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		userAgent:   DefaultUserAgent,
		maxBodySize: model.MaxBodySize,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.rps < 0 {
		return nil, ErrInvalidRate
	}
	f.limiter = rate.NewLimiter(rate.Inf, 1)
	if f.rps > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(f.rps), max(1, int(f.rps)))
	}

	dial := (&net.Dialer{Timeout: f.timeout, KeepAlive: 30 * time.Second}).DialContext
	if f.proxyAddr != "" {
		socks, err := socksDialContext(f.proxyAddr)
		if err != nil {
			return nil, err
		}
		dial = socks
	}

	f.client = &http.Client{
		Transport: &http.Transport{
			DialContext: dial,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: f.insecureTLS, //nolint:gosec // opt-in for self-signed targets
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: f.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f, nil
}

// Fetch requests the URL of target and returns the response as a
// transaction whose Source is target.
//
// Redirects are not followed. A response of any status is a successful
// fetch; only transport failures return an error.
func (f *Fetcher) Fetch(ctx context.Context, target *model.Event) (*model.Transaction, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	rawURL := target.String()

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}

	tx := &model.Transaction{
		URL:        rawURL,
		Method:     http.MethodGet,
		StatusCode: resp.StatusCode,
		Headers:    map[string][]string(resp.Header.Clone()),
		Source:     target,
	}
	contentType := resp.Header.Get("Content-Type")
	tx.SetContentType(contentType)
	tx.Body = decodeBody(body, contentType)
	tx.TruncateBody()
	tx.ComputeHash()

	f.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"content_type", tx.ContentType,
		"bytes", len(tx.Body),
		"elapsed", time.Since(start),
	)
	return tx, nil
}

// decodeBody converts a textual body to UTF-8. The charset parameter of the
// Content-Type wins; HTML without one is sniffed (BOM, then <meta>). Bodies
// that cannot be decoded are returned unchanged.
func decodeBody(body []byte, contentType string) []byte {
	if len(body) == 0 {
		return body
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !isTextual(mediaType) {
		return body
	}

	var (
		enc  encoding.Encoding
		name string
	)
	if label := params["charset"]; label != "" {
		enc, err = htmlindex.Get(label)
		if err != nil {
			return body
		}
		name, _ = htmlindex.Name(enc)
	} else if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		enc, name, _ = charset.DetermineEncoding(body, contentType)
	}
	if enc == nil || name == "utf-8" {
		return body
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

func isTextual(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		strings.Contains(mediaType, "json") ||
		strings.Contains(mediaType, "javascript") ||
		strings.Contains(mediaType, "xml")
}
