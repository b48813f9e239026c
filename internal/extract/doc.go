// Package extract finds URLs, host names, parameters and serialized objects in
// HTTP response text.
//
// Every function in this package is a pure function of its input: nothing is
// cached between calls and re-running an extractor on the same buffer yields
// the same results in the same order. The engine runs them concurrently across
// transactions.
//
// # Components
//
//   - URLs: scheme URLs and bare host names in free text, tolerant of escaped
//     separators (\n, \xHH, \uHHHH, %0a) that obfuscate link boundaries
//   - Links: URL-bearing attributes of an HTML document (href, src, action...)
//   - Parameters: name/value pairs from forms, jQuery calls and tag attributes
//   - DetectSerialized: base64 signatures of Java, .NET, PHP and gzip payloads
//   - PlausibleHost: public-suffix based filter for bare host candidates
//   - ExifText: string EXIF tags of image bodies
//
// Design decision: Extractors return candidates, never events. Deciding the
// event type, tags and distances needs scan state (scope, spider limits, dedup)
// that belongs to the engine and the spider tracker; keeping this package free
// of that state makes every extractor trivially safe for parallel use.
package extract
