package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/excavate/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Classification errors.
var (
	// ErrNoScheme is returned for input without a scheme.
	ErrNoScheme = errors.New("uri has no scheme")

	// ErrNoHost is returned for a non-HTTP URI without a network host
	// (mailto:, javascript:, data: ...).
	ErrNoHost = errors.New("uri has no host")

	// ErrInvalidPort is returned when the port is not a number in range.
	ErrInvalidPort = errors.New("invalid port")
)

// Classification is the result of classifying one URI.
type Classification struct {
	// URI is the input as given, used verbatim in finding descriptions.
	URI string

	// Scheme is the lower-case scheme.
	Scheme string

	// IsHTTP is true for http and https.
	IsHTTP bool

	// Allowed is true when the scheme is HTTP or on the allow-list.
	Allowed bool

	// Protocol is the upper-cased scheme.
	Protocol string

	// Host is the lower-case host name without port.
	Host string

	// Port is the explicit port, or 0 when the URI has none.
	Port int
}

// HasPort reports whether the URI carried an explicit port.
func (c Classification) HasPort() bool {
	return c.Port > 0
}

// Finding returns the FINDING payload for a non-HTTP URI.
func (c Classification) Finding() model.Finding {
	return model.Finding{
		Host:        c.Host,
		Description: "Non-HTTP URI: " + c.URI,
	}
}

// ProtocolRecord returns the PROTOCOL payload for a non-HTTP URI.
func (c Classification) ProtocolRecord() model.Protocol {
	return model.Protocol{
		Protocol: c.Protocol,
		Host:     c.Host,
		Port:     c.Port,
	}
}

// Classifier classifies URIs against a scheme allow-list.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	schemes map[string]struct{}
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithSchemes replaces the allow-list. Scheme names are case-insensitive.
// An empty list allows no non-HTTP scheme.
func WithSchemes(schemes []string) ClassifierOption {
	return func(c *Classifier) {
		c.schemes = make(map[string]struct{}, len(schemes))
		for _, s := range schemes {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				c.schemes[s] = struct{}{}
			}
		}
	}
}

// NewClassifier creates a classifier using DefaultSchemes unless overridden.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{}
	WithSchemes(DefaultSchemes)(c)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Allows reports whether scheme is on the allow-list. http and https are
// always allowed.
func (c *Classifier) Allows(scheme string) bool {
	scheme = strings.ToLower(scheme)
	if scheme == "http" || scheme == "https" {
		return true
	}
	_, ok := c.schemes[scheme]
	return ok
}

// Classify parses uri and classifies it. An error means the input is not a
// usable URI; a filtered scheme is not an error and is reported through
// Classification.Allowed.
func (c *Classifier) Classify(uri string) (Classification, error) {
	uri = strings.TrimSpace(uri)
	u, err := url.Parse(uri)
	if err != nil {
		return Classification{}, fmt.Errorf("failed to parse %q: %w", uri, err)
	}
	return c.ClassifyURL(uri, u)
}

// ClassifyURL classifies an already parsed URL. raw is kept as the URI text.
func (c *Classifier) ClassifyURL(raw string, u *url.URL) (Classification, error) {
	if u.Scheme == "" {
		return Classification{}, ErrNoScheme
	}

	scheme := strings.ToLower(u.Scheme)
	result := Classification{
		URI:      raw,
		Scheme:   scheme,
		IsHTTP:   scheme == "http" || scheme == "https",
		Allowed:  c.Allows(scheme),
		Protocol: cases.Upper(language.English).String(scheme),
		Host:     strings.TrimSuffix(strings.ToLower(u.Hostname()), "."),
	}

	if result.Host == "" {
		return result, ErrNoHost
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return result, fmt.Errorf("%w: %q", ErrInvalidPort, p)
		}
		result.Port = port
	}

	return result, nil
}
