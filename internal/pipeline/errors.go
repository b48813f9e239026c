package pipeline

import "errors"

var (
	// ErrNoSeeds is returned by Run when none of the seeds could be registered.
	ErrNoSeeds = errors.New("no valid seed URLs")

	// ErrNilEngine is returned when a loop is created without an engine.
	ErrNilEngine = errors.New("engine is nil")

	// ErrNilFetcher is returned when a loop is created without a fetcher.
	ErrNilFetcher = errors.New("fetcher is nil")
)
