package spider

import "errors"

var (
	// ErrInvalidSeed is returned when a seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrDuplicateSeed is returned when the same seed is given twice.
	ErrDuplicateSeed = errors.New("duplicate seed URL")

	// ErrAlreadyFetched is returned when a URL event is requested twice for the same page.
	ErrAlreadyFetched = errors.New("URL already fetched")
)
