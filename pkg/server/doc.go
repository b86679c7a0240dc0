// Package server assembles a running proxy from configuration: the worker
// dispatcher, stats store, runtime loader, clusters with their load
// balancers, listeners with their connection managers, access log sinks,
// and the admin endpoint serving Prometheus metrics, health and cluster
// membership.
//
// The data plane runs on a single dispatcher goroutine; the admin HTTP
// server and discovery fetches run on ordinary goroutines and hand results
// back to the loop with Post.
package server
