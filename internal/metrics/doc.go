// Package metrics exposes Prometheus counters for a scan.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics value without checking for nil at every call site.
package metrics
