// Package stats provides the counter and gauge facade used by the data
// plane, backed by a Prometheus registry.
//
// Core code names stats with dot-separated canonical names
// ("cluster.backend.update_success"); the store keeps those names stable
// for tests and log output while exporting Prometheus-sanitized series
// (namespace prefix, dots to underscores) through the registry handed to
// the admin endpoint.
//
// Counters and gauges also keep a locally readable value: the load
// balancer consults gauges (max host weight) on the hot path and tests
// assert on counters, neither of which should require scraping the
// registry.
package stats
