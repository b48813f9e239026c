package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when the database does not
	// exist and creation was not requested.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrScanNotFound is returned when a scan ID is unknown.
	ErrScanNotFound = errors.New("scan not found")

	// ErrNilEvent is returned when a nil event is emitted.
	ErrNilEvent = errors.New("event is nil")
)
