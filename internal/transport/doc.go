// Package transport fetches URLs for the spider and turns each response into
// a model.Transaction.
//
// The Fetcher never follows redirects: a 3xx response is returned as is so
// the extraction engine can read its Location header and hand the target to
// the spider tracker with a hop cost of zero. Bodies are read up to a size
// limit and decoded to UTF-8 before extraction.
//
// Requests can be routed through a SOCKS5 proxy, either an external one
// (a Tor daemon at 127.0.0.1:9050, an SSH tunnel) or an embedded Tor daemon
// started with StartEmbeddedTor.
package transport
