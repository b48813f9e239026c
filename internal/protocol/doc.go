// Package protocol classifies URIs whose scheme is not http or https.
//
// # Architecture
//
// A Classifier holds an allow-list of scheme names. Classify parses a URI and
// reports whether it is HTTP, and for everything else the upper-cased protocol,
// the host and the port if one was written in the URI. No default port is ever
// inferred: "smb://127.0.0.1" yields a record without a port.
//
// Design decision: Free text is full of "word://" sequences that are not network
// protocols at all ("nonsense://host"). Rather than hard-coding which schemes are
// interesting, the allow-list is configuration (valid_schemes) and the classifier
// only enforces it. DefaultSchemes is the list used when nothing is configured.
//
// # Usage
//
//	c := protocol.NewClassifier()
//	result, err := c.Classify("ftp://127.0.0.1:2121")
//	if err == nil && !result.IsHTTP && result.Allowed {
//	    finding := result.Finding()   // "Non-HTTP URI: ftp://127.0.0.1:2121"
//	    record := result.ProtocolRecord() // {FTP 127.0.0.1 2121}
//	}
package protocol
