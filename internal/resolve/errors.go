package resolve

import "errors"

// Resolution errors. Callers in the extraction path discard the candidate on
// any of these; they never abort processing of the rest of a page.
var (
	// ErrEmptyCandidate is returned for an empty or whitespace-only candidate.
	ErrEmptyCandidate = errors.New("empty URL candidate")

	// ErrBaseNotAbsolute is returned when the base URL has no scheme or host.
	ErrBaseNotAbsolute = errors.New("base URL is not absolute")

	// ErrMalformedURL is returned when a candidate cannot be parsed.
	ErrMalformedURL = errors.New("malformed URL")
)
