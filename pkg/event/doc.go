// Package event implements the per-worker event loop that every data-plane
// component runs on.
//
// A Dispatcher owns an epoll instance and a timer heap and drives file
// readiness callbacks, timers, cross-goroutine posts, and deferred cleanup
// from a single goroutine. Components in pkg/network, pkg/http and
// pkg/upstream are single-threaded by construction: they are created on a
// dispatcher and only ever touched from its Run loop, so the core carries no
// locks.
//
// The only suspension point in the model is returning to the event loop.
// Anything that would block becomes a timer or a readiness callback instead:
// socket reads and writes stop at EAGAIN, deferred work is scheduled with
// zero-delay timers, and other goroutines hand work to the loop with Post.
//
// File events are registered edge-triggered; callers are expected to drain
// readiness completely (read or write until EAGAIN) before returning, which
// is exactly what the connection read/write loops do.
package event
