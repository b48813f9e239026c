package extract

import (
	"iter"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// CandidateKind distinguishes URL candidates from bare host names.
type CandidateKind int

const (
	// KindURL is a "scheme://..." candidate.
	KindURL CandidateKind = iota

	// KindHost is a bare host name, either found on its own or taken from a URL.
	KindHost
)

// String returns the kind name.
func (k CandidateKind) String() string {
	if k == KindHost {
		return "host"
	}
	return "url"
}

// Candidate is one URL-like token found in text.
type Candidate struct {
	// Kind is the candidate kind.
	Kind CandidateKind

	// Value is the URL as written (after escape stripping), or the lower-case host.
	Value string

	// Scheme is the lower-case scheme of a URL candidate.
	Scheme string

	// Host is the lower-case host name without port.
	Host string

	// Offset is the position of the candidate in the escape-stripped text.
	Offset int
}

// IsHTTP reports whether the candidate is an http or https URL.
func (c Candidate) IsHTTP() bool {
	return c.Kind == KindURL && (c.Scheme == "http" || c.Scheme == "https")
}

var (
	// escapeRe matches separator escapes that never belong to a URL: backslash
	// escapes of control characters, \xHH and \uHHHH numeric escapes, and
	// percent-encoded newline, carriage return and tab.
	escapeRe = regexp.MustCompile(`(?i)\\[nrt]|\\x[0-9a-f]{2}|\\u[0-9a-f]{4}|%0[ad9]`)

	// urlChars is the character class of a URL body.
	urlChars = "[^\\s\"'<>`\\\\{}|^]"

	// httpURLRe finds http(s) URLs anywhere, including glued to preceding text.
	httpURLRe = regexp.MustCompile(`(?i)https?://` + urlChars + `+`)

	// schemeURLRe finds URLs of any scheme that starts on a token boundary.
	schemeURLRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9+.\-])([a-z][a-z0-9+.\-]{0,31})://(` + urlChars + `+)`)

	// bareHostRe finds host-name-shaped tokens that are not part of a URL,
	// an e-mail address or a file path.
	bareHostRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9.\-_@/])((?:[a-z0-9](?:[a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z](?:[a-z0-9\-]{0,61}[a-z0-9])?)`)

	// htmlEntityTails are entity-encoded delimiters that end a URL.
	htmlEntityTails = []string{"&quot;", "&#34;", "&#39;", "&apos;", "&lt;", "&gt;"}
)

// StripEscapes replaces separator escapes with spaces so they delimit tokens
// instead of corrupting them. JSON-escaped slashes are unescaped.
//
//	`\nhttps://www1.test.notreal` -> ` https://www1.test.notreal`
func StripEscapes(text string) string {
	text = strings.ReplaceAll(text, `\/`, `/`)
	return escapeRe.ReplaceAllString(text, " ")
}

// URLs returns the URL and host candidates of text. Each call rescans the
// whole text; the sequence can be ranged over any number of times.
//
// URL candidates come first in text order. The host of each URL follows as a
// lower-priority KindHost candidate, then bare host names found outside URLs.
// A value is yielded at most once per call.
func URLs(text string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		clean := StripEscapes(text)
		seen := make(map[string]struct{})
		once := func(c Candidate) bool {
			key := c.Kind.String() + ":" + c.Value
			if _, dup := seen[key]; dup {
				return false
			}
			seen[key] = struct{}{}
			return true
		}

		var found []Candidate
		for _, loc := range httpURLRe.FindAllStringIndex(clean, -1) {
			if c, ok := urlCandidate(clean[loc[0]:loc[1]], loc[0]); ok {
				found = append(found, c)
			}
		}
		for _, m := range schemeURLRe.FindAllStringSubmatchIndex(clean, -1) {
			scheme := strings.ToLower(clean[m[2]:m[3]])
			if strings.HasSuffix(scheme, "http") || strings.HasSuffix(scheme, "https") {
				// Covered by httpURLRe, which also handles the glued form.
				continue
			}
			if c, ok := urlCandidate(clean[m[2]:m[5]], m[2]); ok {
				found = append(found, c)
			}
		}
		sort.SliceStable(found, func(i, j int) bool {
			return found[i].Offset < found[j].Offset
		})

		var hosts []Candidate
		for _, c := range found {
			if !once(c) {
				continue
			}
			if !yield(c) {
				return
			}
			if isHostName(c.Host) {
				hosts = append(hosts, Candidate{Kind: KindHost, Value: c.Host, Host: c.Host, Offset: c.Offset})
			}
		}

		for _, m := range bareHostRe.FindAllStringSubmatchIndex(clean, -1) {
			start, end := m[2], m[3]
			if end < len(clean) && isHostTail(clean[end]) {
				continue
			}
			host := strings.ToLower(clean[start:end])
			hosts = append(hosts, Candidate{Kind: KindHost, Value: host, Host: host, Offset: start})
		}

		for _, c := range hosts {
			if !once(c) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// urlCandidate trims a raw URL match and parses it. Unparseable or hostless
// tokens are rejected.
func urlCandidate(raw string, offset int) (Candidate, bool) {
	raw = trimURL(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Candidate{}, false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return Candidate{}, false
	}
	return Candidate{
		Kind:   KindURL,
		Value:  raw,
		Scheme: strings.ToLower(u.Scheme),
		Host:   host,
		Offset: offset,
	}, true
}

// trimURL removes trailing punctuation and unbalanced closing brackets that
// belong to the surrounding prose rather than the URL.
func trimURL(raw string) string {
	for _, tail := range htmlEntityTails {
		if i := strings.Index(raw, tail); i >= 0 {
			raw = raw[:i]
		}
	}
	for raw != "" {
		last := raw[len(raw)-1]
		switch last {
		case '.', ',', ';', ':', '!', '?', '*':
			raw = raw[:len(raw)-1]
			continue
		case ')':
			if strings.Count(raw, "(") < strings.Count(raw, ")") {
				raw = raw[:len(raw)-1]
				continue
			}
		case ']':
			if strings.Count(raw, "[") < strings.Count(raw, "]") {
				raw = raw[:len(raw)-1]
				continue
			}
		}
		break
	}
	return raw
}

// isHostTail reports whether c continues a host-like token, in which case the
// regex stopped in the middle of something that is not a host name.
func isHostTail(c byte) bool {
	return c == '-' || c == '_' || c == '@' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isHostName reports whether host is a dotted DNS name rather than an IP literal.
func isHostName(host string) bool {
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	if net.ParseIP(host) != nil {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
				return false
			}
		}
	}
	return true
}
