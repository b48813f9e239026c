package log

import (
	"net/url"
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// sensitiveKeys contains attribute keys and query parameter names whose
// values are always masked.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-csrf-token":        true,
	"proxy-authorization": true,

	// Authentication
	"password":      true,
	"passwd":        true,
	"pwd":           true,
	"secret":        true,
	"token":         true,
	"key":           true,
	"api_key":       true,
	"apikey":        true,
	"api-key":       true,
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"client_secret": true,
	"private_key":   true,
	"signature":     true,
	"sig":           true,

	// Session
	"session":    true,
	"session_id": true,
	"sessionid":  true,
	"sid":        true,
	"jsessionid": true,
	"phpsessid":  true,
}

// sensitiveKeywords mark a key as sensitive when contained in it.
// The bare "key" is not one of them: event_key, primary_key and friends are
// harmless.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "cookie",
}

// sensitivePatterns match whole string values that are credentials
// regardless of their key.
var sensitivePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// AWS access keys
	regexp.MustCompile(`^(AKIA|ASIA)[0-9A-Z]{16}$`),

	// GitHub and Slack tokens
	regexp.MustCompile(`^gh[pousr]_[A-Za-z0-9]{36,}$`),
	regexp.MustCompile(`^xox[abpr]-[A-Za-z0-9-]{10,}$`),

	// Private key markers
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// urlPattern finds URLs inside free text such as error messages. It stops at
// quotes so that `Get "http://..."` style errors are handled.
var urlPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.\-]*://[^\s"'<>]+`)

// isSensitiveKey reports whether an attribute key or query parameter name
// names a credential.
func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	return sensitiveKeys[key] || containsSensitiveKeyword(key)
}

// containsSensitiveKeyword checks if the key contains sensitive keywords.
func containsSensitiveKeyword(key string) bool {
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// isSensitiveValue checks if a value matches sensitive patterns.
func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// scrubText masks a credential value or scrubs every URL inside text.
func scrubText(text string) string {
	if isSensitiveValue(text) {
		return MaskValue
	}
	if !strings.Contains(text, "://") {
		return text
	}
	return urlPattern.ReplaceAllStringFunc(text, scrubURL)
}

// scrubURL masks the user info password and the values of sensitive query
// parameters of raw. The rest of raw is kept byte for byte.
func scrubURL(raw string) string {
	_, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	prefix := raw[:len(raw)-len(rest)]

	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	authority, tail := rest[:end], rest[end:]
	changed := false

	if at := strings.LastIndex(authority, "@"); at >= 0 {
		if user, _, hasPassword := strings.Cut(authority[:at], ":"); hasPassword {
			authority = user + ":" + MaskValue + authority[at:]
			changed = true
		}
	}

	hash := strings.IndexByte(tail, '#')
	if q := strings.IndexByte(tail, '?'); q >= 0 && (hash < 0 || q < hash) {
		query, fragment := tail[q+1:], ""
		if hash >= 0 {
			query, fragment = tail[q+1:hash], tail[hash:]
		}
		if scrubbed, ok := scrubQuery(query); ok {
			tail = tail[:q+1] + scrubbed + fragment
			changed = true
		}
	}

	if !changed {
		return raw
	}
	return prefix + authority + tail
}

// scrubQuery masks the values of sensitive parameters of a raw query string.
func scrubQuery(query string) (string, bool) {
	parts := strings.Split(query, "&")
	changed := false
	for i, part := range parts {
		rawName, _, _ := strings.Cut(part, "=")
		name := rawName
		if decoded, err := url.QueryUnescape(rawName); err == nil {
			name = decoded
		}
		if name != "" && isSensitiveKey(name) {
			parts[i] = rawName + "=" + MaskValue
			changed = true
		}
	}
	return strings.Join(parts, "&"), changed
}
