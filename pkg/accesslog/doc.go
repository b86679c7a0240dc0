// Package accesslog records one entry per proxied request.
//
// Entries flow through the Log interface to one or more sinks: a line-based
// writer sink for stdout or a file, and a SQLite-backed store for
// queryable retention. The SQLite store runs in WAL mode and keeps a
// prepared insert; a cron-driven retention scheduler prunes entries older
// than the configured window so the database stays bounded.
//
// Logging never fails a request: sink errors are logged and dropped.
package accesslog
