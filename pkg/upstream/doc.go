// Package upstream implements cluster membership and load balancing: hosts
// and host-set snapshots, static and discovery-fed clusters, and the host
// selection policies the router draws from.
//
// A HostSet is an immutable-by-reference snapshot of a cluster's
// membership: the full host list, the healthy sublist, and both partitioned
// by zone with the local zone first. Clusters publish a new snapshot on
// every membership change; member-update callbacks fire synchronously
// inside the update, before any caller observes the new lists. A Host
// removed from the set lives on until its last holder drops it, so
// in-flight requests keep valid host references.
//
// Load balancers share a common prefilter: an empty cluster short-circuits,
// too few healthy hosts triggers panic mode (all hosts become eligible),
// and otherwise zone-aware routing keeps traffic in the local zone
// proportionally to its capacity. On top of the filtered list sit
// round-robin, random, and power-of-two-choices least-request policies.
//
// The SDS cluster polls a discovery service for its membership on a
// jittered interval and reconciles the response against the current hosts,
// preserving Host identity across refreshes.
package upstream
