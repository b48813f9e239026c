package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no target is specified.
	ErrNoTarget = errors.New("no target specified: provide a URL, host name or network")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the number of workers is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidSpiderDistance is returned when web_spider_distance is negative.
	ErrInvalidSpiderDistance = errors.New("invalid web spider distance: must be non-negative")

	// ErrInvalidSpiderDepth is returned when web_spider_depth is negative.
	ErrInvalidSpiderDepth = errors.New("invalid web spider depth: must be non-negative")

	// ErrInvalidLinksPerPage is returned when web_spider_links_per_page is negative.
	ErrInvalidLinksPerPage = errors.New("invalid links per page: must be non-negative")

	// ErrInvalidScopeReportDistance is returned when scope_report_distance is negative.
	ErrInvalidScopeReportDistance = errors.New("invalid scope report distance: must be non-negative")

	// ErrInvalidRequestRate is returned when the request rate is negative.
	// Use 0 for no limit.
	ErrInvalidRequestRate = errors.New("invalid requests per second: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	// Use 0 for no limit.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingProxy is returned when both an external proxy and the
	// embedded Tor daemon are requested.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --proxy and --embedded-tor cannot be used together")

	// ErrInvalidRule is returned when a custom rule has no name or no source.
	ErrInvalidRule = errors.New("invalid rule: name and source (or file) are required")
)
