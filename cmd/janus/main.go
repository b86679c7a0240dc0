// Janus is an L7 reverse proxy data plane.
//
// It accepts client connections, decodes HTTP/1.1 requests, selects an
// upstream host from a dynamically-managed cluster and streams the
// response back, providing:
//   - Non-blocking event-loop I/O with a filter pipeline per connection
//   - Round-robin, least-request and random load balancing with
//     zone-aware routing and panic-mode fallback
//   - Cluster membership from static configuration or service discovery
//   - Runtime feature flags from a watched directory tree
//   - Access logging to files and a queryable SQLite store
//   - Prometheus metrics and cluster introspection on an admin endpoint
//
// Usage:
//
//	# Start with a configuration file
//	janus run --config /etc/janus/config.yaml
//
//	# Validate configuration without serving
//	janus validate --config /etc/janus/config.yaml
//
//	# Show version information
//	janus version
package main

func main() {
	Execute()
}
