// Package resolve turns extracted URL candidates into absolute URLs.
//
// # Kinds
//
// A candidate is classified before it is resolved, in priority order:
//
//   - Absolute: the candidate carries a scheme ("https://host/x", "ftp://host")
//   - ProtocolRelative: the candidate starts with "//" and inherits the base scheme
//   - RootRelative: the candidate starts with "/" and replaces the whole base path
//   - PageRelative: anything else, merged with the directory of the base path
//
// Root-relative and page-relative resolution must not be confused: visiting
// /subdir/ with the links /rootrelative.html and pagerelative.html yields
// /rootrelative.html and /subdir/pagerelative.html respectively.
//
// # Redirects
//
// A Location header is resolved against the URL that issued the redirect, never
// against the URL originally requested. ResolveChain applies that rule across
// a whole chain of redirects.
//
// # Normalization
//
// Normalize produces the form used for deduplication and for emitted URL events:
// lower-case scheme and host, default ports removed, fragment dropped, and an
// empty path replaced with "/".
package resolve
