package excavate

import "errors"

var (
	// ErrNilTransaction is returned when Process is called without a transaction.
	ErrNilTransaction = errors.New("transaction is nil")

	// ErrInvalidTransactionURL is returned when a transaction URL is not an absolute http(s) URL.
	ErrInvalidTransactionURL = errors.New("transaction URL is not an absolute http(s) URL")

	// ErrNilTracker is returned when an engine is created without a spider tracker.
	ErrNilTracker = errors.New("spider tracker is nil")

	// ErrNilSink is returned when an engine is created without an event sink.
	ErrNilSink = errors.New("event sink is nil")
)
