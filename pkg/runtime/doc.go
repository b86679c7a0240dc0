// Package runtime provides the key/value oracle the data plane consults for
// feature rollout and tunable thresholds, plus the random source used for
// load balancing draws and request-id generation.
//
// Keys are dot-separated ("upstream.healthy_panic_threshold"). The disk
// loader maps them onto a directory tree where each path segment is a
// directory and the leaf file's contents are the value; the tree is read
// into an immutable Snapshot and re-read when fsnotify reports a change, so
// readers never observe a half-written state. NewNullLoader serves defaults
// only and is the zero-configuration fallback.
//
// Lookups never fail: a missing or malformed key yields the caller's
// default. FeatureEnabled draws from the loader's random generator against
// a 0-100 rollout percentage.
package runtime
