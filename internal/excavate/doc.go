// Package excavate turns observed HTTP transactions into events.
//
// # Engine
//
// Engine.Process runs every extraction technique over one transaction:
//
//   - redirect: the Location header, resolved against the redirecting URL
//   - speculate: the origin roots of the page URL
//   - links: URL-bearing HTML attributes, resolved against <base> or the page
//   - urls: URLs and bare host names in the escape-stripped body text
//   - parameters: form fields, jQuery call arguments and query strings
//   - serialization: base64 serialized objects
//   - csp: host sources of Content-Security-Policy headers
//   - signature rules: built-in and custom rules over body, headers and EXIF text
//
// HTTP URLs go through the spider tracker, which decides their tags,
// distances and whether they are fetched. Non-HTTP URIs go through the
// protocol classifier. Everything else becomes an event whose scope distance
// is computed from the host it names.
//
// The engine holds no per-scan state of its own: the tracker owns the seen
// sets and the registry owns the rules, so Process may be called from many
// goroutines at once.
//
// # Rules
//
// Rules are registered by name with AddRule. A rule may come with a
// RuleHandler that turns its matches into events; without one, every match
// becomes a FINDING described as "HTTP response (<buffer>) <description>".
//
//	engine.AddRule("SearchForText", `
//	rule SearchForText {
//	    meta:
//	        description = "Contains the text AAAABBBBCCCC"
//	    strings:
//	        $text = "AAAABBBBCCCC"
//	    condition:
//	        $text
//	}`, nil)
package excavate
