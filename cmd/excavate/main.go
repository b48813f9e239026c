// Package main provides the entry point for the excavate CLI.
//
// excavate spiders web targets and extracts URLs, findings, protocols,
// parameters and host names from every response it fetches.
//
// Usage:
//
//	excavate scan <target>...
//	excavate rules validate <file>
//	excavate compare <scan-id> <scan-id>
//
// See --help for all available options.
package main

// main is the entry point for excavate.
func main() {
	Execute()
}
