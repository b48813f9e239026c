// Package pipeline drives the spider: it fetches queued URLs, hands each
// transaction to the extraction engine and queues the URLs the engine
// promotes, until nothing is left to fetch.
//
// A Loop runs one scan over one engine. Pages are fetched by a fixed number
// of workers while a single dispatcher goroutine owns the queue, so the
// queue itself needs no locking. The engine and its spider tracker are safe
// for concurrent use and decide on their own which URLs are worth fetching.
//
// Design decision: We keep fetching behind the small Fetcher interface
// rather than calling the transport package directly because:
// 1. Tests can drive the loop with canned transactions
// 2. Other transports (replayed traffic, a headless browser) plug in unchanged
//
// BatchProcessor runs one isolated Loop per target with concurrency control
// using errgroup, for scans where targets must not share spider state.
package pipeline
