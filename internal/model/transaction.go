package model

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"net/http"
	"slices"
	"strings"
)

// MaxBodySize is the maximum size of a response body kept for extraction.
// Larger bodies are truncated to this size.
const MaxBodySize = 5 * 1024 * 1024 // 5 MB

// Transaction is one observed HTTP request/response pair.
// It is the unit of work of the extraction engine: the transport produces
// transactions and the engine turns each one into events.
//
// Design decision: We store both raw bytes and headers because:
// 1. Raw bytes are needed for binary analysis (EXIF, etc.)
// 2. Headers carry Location and Content-Security-Policy, which are extracted separately
// 3. The hash allows deduplication of identical responses
type Transaction struct {
	// URL is the full requested URL.
	URL string `json:"url"`

	// Method is the request method.
	Method string `json:"method"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains all HTTP response headers.
	// Keys are header names (canonicalized), values are slices of header values.
	Headers map[string][]string `json:"headers"`

	// ContentType is the media type of the response without parameters.
	ContentType string `json:"content_type"`

	// Body contains the response body, decoded to UTF-8 when it was text.
	// Limited to MaxBodySize bytes.
	Body []byte `json:"-"`

	// Hash is the SHA-256 hash of the body.
	Hash string `json:"hash"`

	// Source is the event that caused this fetch (a URL_UNVERIFIED or seed).
	// Nil when the transaction did not come from the spider.
	Source *Event `json:"-"`
}

// ComputeHash calculates and sets the SHA-256 hash of the body.
// This should be called after setting the Body field.
func (t *Transaction) ComputeHash() {
	if len(t.Body) == 0 {
		t.Hash = ""
		return
	}

	hash := sha256.Sum256(t.Body)
	t.Hash = hex.EncodeToString(hash[:])
}

// GetHeader returns the first value of the specified header.
// Returns empty string if the header is not present.
func (t *Transaction) GetHeader(name string) string {
	if values := t.GetAllHeaders(name); len(values) > 0 {
		return values[0]
	}
	return ""
}

// GetAllHeaders returns all values of the specified header.
// The lookup is case-insensitive. Returns nil if the header is not present.
func (t *Transaction) GetAllHeaders(name string) []string {
	if values, ok := t.Headers[http.CanonicalHeaderKey(name)]; ok {
		return values
	}
	for k, v := range t.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// HeaderText renders the headers as "Name: value" lines in a stable order.
// This is the buffer that header-side extraction scans.
func (t *Transaction) HeaderText() string {
	names := make([]string, 0, len(t.Headers))
	for k := range t.Headers {
		names = append(names, k)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		for _, v := range t.Headers[name] {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// SetContentType normalizes a raw Content-Type header into ContentType.
func (t *Transaction) SetContentType(raw string) {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
	}
	t.ContentType = mediaType
}

// IsHTML returns true if the content type indicates HTML.
func (t *Transaction) IsHTML() bool {
	return t.ContentType == "text/html" || t.ContentType == "application/xhtml+xml"
}

// IsImage returns true if the content type indicates an image.
func (t *Transaction) IsImage() bool {
	return strings.HasPrefix(t.ContentType, "image/")
}

// IsRedirect returns true for 3xx responses carrying a Location header.
func (t *Transaction) IsRedirect() bool {
	return t.StatusCode >= 300 && t.StatusCode < 400 && t.Location() != ""
}

// Location returns the redirect target as sent by the server.
func (t *Transaction) Location() string {
	return strings.TrimSpace(t.GetHeader("Location"))
}

// TruncateBody ensures the body doesn't exceed MaxBodySize.
// Call this after setting Body to enforce the size limit.
func (t *Transaction) TruncateBody() {
	if len(t.Body) > MaxBodySize {
		t.Body = t.Body[:MaxBodySize]
	}
}

// ResponsePayload summarizes the transaction as an HTTP_RESPONSE payload.
func (t *Transaction) ResponsePayload() Response {
	method := t.Method
	if method == "" {
		method = http.MethodGet
	}
	return Response{
		URL:         t.URL,
		Method:      method,
		StatusCode:  t.StatusCode,
		ContentType: t.ContentType,
		Location:    t.Location(),
		Hash:        t.Hash,
	}
}
