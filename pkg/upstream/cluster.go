package upstream

import (
	"log/slog"
	"sort"

	"meridian-hq/janus/pkg/stats"
)

// ClusterStats are the per-cluster counters and gauges the membership and
// load-balancing machinery maintains.
type ClusterStats struct {
	UpdateAttempt *stats.Counter
	UpdateSuccess *stats.Counter
	UpdateFailure *stats.Counter

	LbHealthyPanic      *stats.Counter
	ZoneClusterTooSmall *stats.Counter
	ZoneNumberDiffers   *stats.Counter
	LocalClusterNotOK   *stats.Counter
	ZoneOverPercentage  *stats.Counter

	MaxHostWeight *stats.Gauge
}

// NewClusterStats issues the cluster's stats from store under
// "cluster.<name>.".
func NewClusterStats(name string, store *stats.Store) ClusterStats {
	prefix := "cluster." + name + "."
	return ClusterStats{
		UpdateAttempt:       store.Counter(prefix + "update_attempt"),
		UpdateSuccess:       store.Counter(prefix + "update_success"),
		UpdateFailure:       store.Counter(prefix + "update_failure"),
		LbHealthyPanic:      store.Counter(prefix + "upstream_rq_lb_healthy_panic"),
		ZoneClusterTooSmall: store.Counter(prefix + "zone_cluster_too_small"),
		ZoneNumberDiffers:   store.Counter(prefix + "zone_number_differs"),
		LocalClusterNotOK:   store.Counter(prefix + "local_cluster_not_ok"),
		ZoneOverPercentage:  store.Counter(prefix + "zone_over_percentage"),
		MaxHostWeight:       store.Gauge(prefix + "max_host_weight"),
	}
}

// LoadBalancerPolicy names a host selection policy.
type LoadBalancerPolicy string

const (
	RoundRobin   LoadBalancerPolicy = "round_robin"
	LeastRequest LoadBalancerPolicy = "least_request"
	RandomPolicy LoadBalancerPolicy = "random"
)

// Cluster is the base shared by static and discovery-fed clusters: a host
// set plus identity, stats and the local-zone tag used for partitioning.
type Cluster struct {
	HostSet

	name      string
	localZone string
	stats     ClusterStats
	logger    *slog.Logger
}

// NewCluster creates an empty cluster.
func NewCluster(name, localZone string, store *stats.Store, logger *slog.Logger) *Cluster {
	return &Cluster{
		name:      name,
		localZone: localZone,
		stats:     NewClusterStats(name, store),
		logger:    logger.With("cluster", name),
	}
}

// Name returns the cluster name.
func (c *Cluster) Name() string { return c.name }

// Stats returns the cluster's stats.
func (c *Cluster) Stats() *ClusterStats { return &c.stats }

// NewStaticCluster creates a cluster with a fixed membership, all healthy.
func NewStaticCluster(name, localZone string, addresses []string, store *stats.Store, logger *slog.Logger) *Cluster {
	c := NewCluster(name, localZone, store, logger)
	hosts := make([]*Host, 0, len(addresses))
	for _, address := range addresses {
		hosts = append(hosts, NewHost(address, false, 1, ""))
	}
	c.installHosts(hosts, hosts, nil)
	return c
}

// installHosts publishes a new membership snapshot, refreshing the derived
// views and the max-weight gauge.
func (c *Cluster) installHosts(hosts []*Host, added, removed []*Host) {
	healthy := healthyHostList(hosts)
	maxWeight := uint32(1)
	for _, h := range hosts {
		if h.Weight() > maxWeight {
			maxWeight = h.Weight()
		}
	}
	c.stats.MaxHostWeight.Set(int64(maxWeight))
	c.UpdateHosts(
		hosts,
		healthy,
		partitionByZone(hosts, c.localZone),
		partitionByZone(healthy, c.localZone),
		added,
		removed,
	)
}

// RefreshHealth rebuilds the healthy views after health flags changed
// without a membership change.
func (c *Cluster) RefreshHealth() {
	c.installHosts(c.Hosts(), nil, nil)
}

// healthyHostList filters hosts to the healthy subset.
func healthyHostList(hosts []*Host) []*Host {
	healthy := make([]*Host, 0, len(hosts))
	for _, h := range hosts {
		if h.Healthy() {
			healthy = append(healthy, h)
		}
	}
	return healthy
}

// partitionByZone groups hosts by zone with the local zone always at index
// zero; remaining zones follow in name order for determinism.
func partitionByZone(hosts []*Host, localZone string) [][]*Host {
	buckets := make(map[string][]*Host)
	for _, h := range hosts {
		buckets[h.Zone()] = append(buckets[h.Zone()], h)
	}

	zones := make([]string, 0, len(buckets))
	for zone := range buckets {
		if zone != localZone {
			zones = append(zones, zone)
		}
	}
	sort.Strings(zones)

	out := make([][]*Host, 0, len(zones)+1)
	out = append(out, buckets[localZone])
	for _, zone := range zones {
		out = append(out, buckets[zone])
	}
	return out
}

// reconcileHosts merges a freshly discovered host list with the current
// membership, preserving existing Host objects so their stats and health
// state carry across refreshes. New hosts start health-check-failed when a
// health checker gates them.
func reconcileHosts(newHosts, currentHosts []*Host, dependOnHealthCheck bool) (final, added, removed []*Host, changed bool) {
	currentByAddress := make(map[string]*Host, len(currentHosts))
	for _, h := range currentHosts {
		currentByAddress[h.Address()] = h
	}

	final = make([]*Host, 0, len(newHosts))
	for _, nh := range newHosts {
		if existing, ok := currentByAddress[nh.Address()]; ok {
			// Weight updates ride along without replacing the host.
			existing.SetWeight(nh.Weight())
			final = append(final, existing)
			delete(currentByAddress, nh.Address())
			continue
		}
		if dependOnHealthCheck {
			nh.HealthFlagSet(FailedActiveHealthCheck)
		}
		final = append(final, nh)
		added = append(added, nh)
	}

	for _, h := range currentHosts {
		if _, stillGone := currentByAddress[h.Address()]; stillGone {
			removed = append(removed, h)
		}
	}
	return final, added, removed, len(added) > 0 || len(removed) > 0
}
