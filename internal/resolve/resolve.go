package resolve

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// Kind is the syntactic form of a URL candidate.
type Kind int

const (
	// Absolute candidates carry their own scheme.
	Absolute Kind = iota

	// ProtocolRelative candidates start with "//".
	ProtocolRelative

	// RootRelative candidates start with a single "/".
	RootRelative

	// PageRelative candidates are relative to the directory of the base URL.
	PageRelative
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case ProtocolRelative:
		return "protocol_relative"
	case RootRelative:
		return "root_relative"
	case PageRelative:
		return "page_relative"
	default:
		return "unknown"
	}
}

// IsRelative reports whether the candidate depended on its base URL for its host.
func (k Kind) IsRelative() bool {
	return k == RootRelative || k == PageRelative
}

// Resolved is an absolute URL together with the kind of candidate it came from.
type Resolved struct {
	// URL is the absolute URL.
	URL *url.URL

	// Kind is the form of the original candidate.
	Kind Kind
}

// String returns the absolute URL.
func (r Resolved) String() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Classify returns the kind of a candidate without resolving it.
func Classify(candidate string) (Kind, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return 0, ErrEmptyCandidate
	}

	switch {
	case strings.HasPrefix(candidate, "//"):
		return ProtocolRelative, nil
	case strings.HasPrefix(candidate, "/"):
		return RootRelative, nil
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if u.Scheme != "" {
		return Absolute, nil
	}
	return PageRelative, nil
}

// Resolve classifies candidate and resolves it against base.
//
// Design decision: Resolution itself is delegated to url.ResolveReference,
// which implements the RFC 3986 merge rules (directory of the base path for
// page-relative references, "../" ascending one level). Classification is
// done separately because callers need to know whether the candidate was
// relative to apply extension policies to it.
func Resolve(candidate string, base *url.URL) (Resolved, error) {
	if base == nil || base.Scheme == "" || base.Host == "" {
		return Resolved{}, ErrBaseNotAbsolute
	}

	kind, err := Classify(candidate)
	if err != nil {
		return Resolved{}, err
	}

	ref, err := url.Parse(strings.TrimSpace(candidate))
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}

	if kind == Absolute {
		return Resolved{URL: ref, Kind: kind}, nil
	}
	return Resolved{URL: base.ResolveReference(ref), Kind: kind}, nil
}

// ResolveString is Resolve with a string base.
func ResolveString(candidate, base string) (Resolved, error) {
	b, err := url.Parse(base)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	return Resolve(candidate, b)
}

// ResolveRedirect resolves a Location header value against the URL that
// issued the redirect.
func ResolveRedirect(location string, redirecting *url.URL) (Resolved, error) {
	return Resolve(location, redirecting)
}

// ResolveChain follows a sequence of Location values starting at start. Each
// location is resolved against the URL produced by the previous hop, and the
// final absolute URL is returned.
func ResolveChain(start string, locations ...string) (*url.URL, error) {
	current, err := url.Parse(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if current.Scheme == "" || current.Host == "" {
		return nil, ErrBaseNotAbsolute
	}

	for _, location := range locations {
		next, err := ResolveRedirect(location, current)
		if err != nil {
			return nil, fmt.Errorf("redirect to %q from %s: %w", location, current, err)
		}
		current = next.URL
	}
	return current, nil
}

// defaultPorts maps schemes to the port implied when none is given.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// IsHTTP reports whether the URL uses the http or https scheme.
func IsHTTP(u *url.URL) bool {
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

// NormalizeURL returns a normalized copy of u.
func NormalizeURL(u *url.URL) *url.URL {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Fragment = ""
	n.RawFragment = ""

	if n.Host != "" {
		host, port := n.Hostname(), n.Port()
		host = strings.TrimSuffix(strings.ToLower(host), ".")
		if port == defaultPorts[n.Scheme] {
			port = ""
		}
		n.Host = joinHostPort(host, port)
		if n.Path == "" && n.Opaque == "" {
			n.Path = "/"
			n.RawPath = ""
		}
	}
	return &n
}

// Normalize parses raw and returns its normalized string form.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("%w: %q has no scheme", ErrMalformedURL, raw)
	}
	return NormalizeURL(u).String(), nil
}

// joinHostPort joins host and an optional port, bracketing IPv6 literals.
func joinHostPort(host, port string) string {
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}

// Depth returns the number of non-empty path segments of u.
// "/" has depth 0, "/relative.html" depth 1, "/2/depth2.html" depth 2.
func Depth(u *url.URL) int {
	depth := 0
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			depth++
		}
	}
	return depth
}

// Extension returns the lower-case extension of the last path segment without
// the leading dot, or "" if there is none.
func Extension(u *url.URL) string {
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	ext := path.Ext(path.Base(p))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Root returns the origin root of u: scheme, host and port with path "/".
func Root(u *url.URL) *url.URL {
	return NormalizeURL(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"})
}

// Roots returns the origin roots worth speculating for a page URL: the root
// without an explicit non-default port (when the URL has one) followed by the
// origin root itself. The result never contains duplicates.
func Roots(u *url.URL) []*url.URL {
	if u.Host == "" {
		return nil
	}
	root := Root(u)
	if root.Port() == "" {
		return []*url.URL{root}
	}
	bare := NormalizeURL(&url.URL{Scheme: u.Scheme, Host: joinHostPort(u.Hostname(), ""), Path: "/"})
	return []*url.URL{bare, root}
}
