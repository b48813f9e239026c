// Package model defines the core data structures used throughout excavate.
//
// This package contains the following main types:
//   - Event: A typed, tagged record emitted for every discovered artifact
//   - Payload: The closed set of data shapes an Event can carry
//   - Transaction: An observed HTTP request/response pair fed into extraction
//   - CSPPolicy: A parsed Content-Security-Policy header
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The extractors, the spider tracker, the engine, the database
// and the report writers all share these types, so centralizing them prevents
// import cycles.
//
// Events are designed to be serializable to JSON for report output and
// database storage.
package model
