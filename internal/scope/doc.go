// Package scope answers "how far is this host from the declared targets?".
//
// The extraction core never reads the raw target list. It asks an Oracle for
// the scope distance of a URL and combines the answer with the distance of
// the event that led to it. TargetOracle is the Oracle built from the targets
// given on the command line or in the config file.
//
// A target can be:
//
//   - a URL ("http://127.0.0.1:8888/subdir/"), whose host becomes in scope
//   - a host name ("test.notreal"), which puts the name and all its subdomains in scope
//   - an IP address ("10.0.0.5")
//   - a CIDR network ("10.0.0.0/24")
//
// Ports and paths never narrow the scope: every port and path of an in-scope
// host is in scope.
package scope
