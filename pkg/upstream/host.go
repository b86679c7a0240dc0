package upstream

import (
	"sync/atomic"
)

// HealthFlag marks one reason a host is unhealthy. A host is healthy iff no
// flags are set.
type HealthFlag uint32

const (
	// FailedActiveHealthCheck means the active health checker marked the
	// host down.
	FailedActiveHealthCheck HealthFlag = 1 << 0
)

// HostStats are per-host counters. They live on the host itself rather
// than the stats store: hosts churn with discovery and their counters only
// feed load-balancing decisions.
type HostStats struct {
	// RqActive is the number of requests currently outstanding against the
	// host; P2C least-request compares it.
	RqActive atomic.Int64

	// RqTotal counts requests ever sent to the host.
	RqTotal atomic.Uint64
}

// Host is one upstream endpoint. Hosts are shared: the cluster, host-set
// snapshots and in-flight requests all hold references, and a host removed
// from its set stays valid until the last holder drops it.
type Host struct {
	address string
	canary  bool
	zone    string

	weight      atomic.Uint32
	healthFlags atomic.Uint32

	stats HostStats
}

// NewHost creates a host for address ("ip:port"). Weight is clamped to at
// least 1.
func NewHost(address string, canary bool, weight uint32, zone string) *Host {
	h := &Host{address: address, canary: canary, zone: zone}
	h.SetWeight(weight)
	return h
}

// Address returns the host's "ip:port".
func (h *Host) Address() string { return h.address }

// Canary reports whether the host is tagged as a canary.
func (h *Host) Canary() bool { return h.canary }

// Zone returns the availability zone tag, or "".
func (h *Host) Zone() string { return h.zone }

// Weight returns the load-balancing weight.
func (h *Host) Weight() uint32 { return h.weight.Load() }

// SetWeight replaces the load-balancing weight, clamping to at least 1.
func (h *Host) SetWeight(weight uint32) {
	if weight < 1 {
		weight = 1
	}
	h.weight.Store(weight)
}

// Healthy reports whether no health flags are set.
func (h *Host) Healthy() bool { return h.healthFlags.Load() == 0 }

// HealthFlagSet marks flag on the host.
func (h *Host) HealthFlagSet(flag HealthFlag) {
	for {
		old := h.healthFlags.Load()
		if h.healthFlags.CompareAndSwap(old, old|uint32(flag)) {
			return
		}
	}
}

// HealthFlagClear clears flag on the host.
func (h *Host) HealthFlagClear(flag HealthFlag) {
	for {
		old := h.healthFlags.Load()
		if h.healthFlags.CompareAndSwap(old, old&^uint32(flag)) {
			return
		}
	}
}

// HealthFlagGet reports whether flag is set.
func (h *Host) HealthFlagGet(flag HealthFlag) bool {
	return h.healthFlags.Load()&uint32(flag) != 0
}

// Stats returns the host's counters.
func (h *Host) Stats() *HostStats { return &h.stats }

// MemberUpdateCallback observes host-set membership changes. Callbacks run
// synchronously inside the update that caused them.
type MemberUpdateCallback func(hostsAdded, hostsRemoved []*Host)

// HostSet holds the current membership snapshot of a cluster. The slices
// returned by its getters are replaced wholesale on update and must not be
// mutated by callers.
type HostSet struct {
	hosts               []*Host
	healthyHosts        []*Host
	hostsPerZone        [][]*Host
	healthyHostsPerZone [][]*Host

	callbacks []MemberUpdateCallback
}

// Hosts returns every member, healthy or not.
func (hs *HostSet) Hosts() []*Host { return hs.hosts }

// HealthyHosts returns the healthy members.
func (hs *HostSet) HealthyHosts() []*Host { return hs.healthyHosts }

// HostsPerZone returns all members partitioned by zone, local zone first.
func (hs *HostSet) HostsPerZone() [][]*Host { return hs.hostsPerZone }

// HealthyHostsPerZone returns healthy members partitioned by zone, local
// zone first.
func (hs *HostSet) HealthyHostsPerZone() [][]*Host { return hs.healthyHostsPerZone }

// AddMemberUpdateCallback registers cb for future membership changes.
func (hs *HostSet) AddMemberUpdateCallback(cb MemberUpdateCallback) {
	hs.callbacks = append(hs.callbacks, cb)
}

// UpdateHosts installs a new snapshot and runs member-update callbacks
// before returning, so subscribers observe added/removed consistently with
// the new lists.
func (hs *HostSet) UpdateHosts(hosts, healthyHosts []*Host, hostsPerZone, healthyHostsPerZone [][]*Host, hostsAdded, hostsRemoved []*Host) {
	hs.hosts = hosts
	hs.healthyHosts = healthyHosts
	hs.hostsPerZone = hostsPerZone
	hs.healthyHostsPerZone = healthyHostsPerZone
	for _, cb := range hs.callbacks {
		cb(hostsAdded, hostsRemoved)
	}
}
