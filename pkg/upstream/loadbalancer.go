package upstream

import (
	"math"

	"meridian-hq/janus/pkg/runtime"
)

// Runtime keys consulted by the load balancers.
const (
	runtimePanicThreshold     = "upstream.healthy_panic_threshold"
	runtimeZoneRoutingEnabled = "upstream.zone_routing.enabled"
	runtimeZoneMinClusterSize = "upstream.zone_routing.min_cluster_size"
	runtimeWeightEnabled      = "upstream.weight_enabled"
)

const (
	defaultPanicThreshold = 50
	defaultMinClusterSize = 6

	// zoneRoutingEpsilon is the tolerance when comparing local and
	// upstream zone fractions.
	zoneRoutingEpsilon = 1e-5

	// zoneDistributionMultiplier scales zone fractions into the integer
	// cumulative distribution the threshold draw walks.
	zoneDistributionMultiplier = 10000
)

// LoadBalancer selects a host for one request.
type LoadBalancer interface {
	// ChooseHost returns the selected host, or nil when the cluster has no
	// members.
	ChooseHost() *Host
}

// loadBalancerBase carries the state every policy shares and the common
// prefilter that narrows the host set before the policy draws.
type loadBalancerBase struct {
	hostSet      *HostSet
	localHostSet *HostSet // nil when there is no local cluster
	stats        *ClusterStats
	runtime      runtime.Loader
	random       runtime.RandomGenerator
}

// isGlobalPanic reports whether too few of the set's hosts are healthy to
// trust the healthy list; selection then falls back to all hosts.
func (b *loadBalancerBase) isGlobalPanic(hostSet *HostSet) bool {
	threshold := min(100, b.runtime.Snapshot().GetInteger(runtimePanicThreshold, defaultPanicThreshold))
	if len(hostSet.Hosts()) == 0 {
		return true
	}
	healthyPercent := 100.0 * float64(len(hostSet.HealthyHosts())) / float64(len(hostSet.Hosts()))
	if healthyPercent < float64(threshold) {
		b.stats.LbHealthyPanic.Inc()
		return true
	}
	return false
}

// earlyExitNonZoneRouting decides whether this request opts out of
// zone-aware routing and uses the flat healthy list instead.
func (b *loadBalancerBase) earlyExitNonZoneRouting() bool {
	numberOfZones := len(b.hostSet.HealthyHostsPerZone())
	if numberOfZones < 2 ||
		!b.runtime.Snapshot().FeatureEnabled(runtimeZoneRoutingEnabled, 100) {
		return true
	}

	localZoneHealthyHosts := b.hostSet.HealthyHostsPerZone()[0]
	if len(localZoneHealthyHosts) == 0 {
		return true
	}

	// Zone routing on a small cluster would concentrate load too easily.
	minClusterSize := b.runtime.Snapshot().GetInteger(runtimeZoneMinClusterSize, defaultMinClusterSize)
	if uint64(len(b.hostSet.HealthyHosts())) < minClusterSize {
		b.stats.ZoneClusterTooSmall.Inc()
		return true
	}

	if b.localHostSet == nil || b.isGlobalPanic(b.localHostSet) {
		b.stats.LocalClusterNotOK.Inc()
		return true
	}

	// Comparing zone fractions only makes sense over the same zone
	// topology.
	if numberOfZones != len(b.localHostSet.HealthyHostsPerZone()) {
		b.stats.ZoneNumberDiffers.Inc()
		return true
	}

	return false
}

// zonePercentages normalizes per-zone host counts into fractions over the
// healthy hosts.
func zonePercentages(hostsPerZone [][]*Host) []float64 {
	percentage := make([]float64, len(hostsPerZone))
	total := 0
	for _, zoneHosts := range hostsPerZone {
		total += len(zoneHosts)
	}
	if total == 0 {
		return percentage
	}
	for i, zoneHosts := range hostsPerZone {
		percentage[i] = float64(len(zoneHosts)) / float64(total)
	}
	return percentage
}

// tryZoneAwareRouting picks the zone to serve this request from. When the
// local zone has at least as much upstream capacity as local demand, all
// local traffic stays in zone; otherwise the local zone is saturated and
// the spill is spread over zones with spare capacity, proportionally.
func (b *loadBalancerBase) tryZoneAwareRouting() []*Host {
	localZoneHealthyHosts := b.hostSet.HealthyHostsPerZone()[0]

	localPercentage := zonePercentages(b.localHostSet.HealthyHostsPerZone())
	upstreamPercentage := zonePercentages(b.hostSet.HealthyHostsPerZone())

	if localPercentage[0] < upstreamPercentage[0] ||
		math.Abs(localPercentage[0]-upstreamPercentage[0]) < zoneRoutingEpsilon {
		b.stats.ZoneOverPercentage.Inc()
		return localZoneHealthyHosts
	}

	// Local demand exceeds local capacity: build the cumulative residual
	// capacity distribution and draw a zone from it. The local zone keeps
	// its full share.
	distribution := make([]uint64, len(upstreamPercentage))
	distribution[0] = uint64(upstreamPercentage[0] * zoneDistributionMultiplier)
	for i := 1; i < len(upstreamPercentage); i++ {
		distribution[i] = distribution[i-1]
		if residual := upstreamPercentage[i] - localPercentage[i]; residual > 0 {
			distribution[i] += uint64(residual * zoneDistributionMultiplier)
		}
	}

	threshold := b.random.Random() % distribution[len(distribution)-1]
	// Linear scan; zone counts are small in practice.
	pos := 0
	for threshold > distribution[pos] {
		pos++
	}
	return b.hostSet.HealthyHostsPerZone()[pos]
}

// hostsToUse is the common prefilter: empty set passes through, panic mode
// widens to all hosts, and zone-aware routing narrows to one zone when it
// applies.
func (b *loadBalancerBase) hostsToUse() []*Host {
	if len(b.hostSet.Hosts()) == 0 || b.isGlobalPanic(b.hostSet) {
		return b.hostSet.Hosts()
	}
	if b.earlyExitNonZoneRouting() {
		return b.hostSet.HealthyHosts()
	}
	return b.tryZoneAwareRouting()
}

// RoundRobinLoadBalancer cycles through the filtered hosts.
type RoundRobinLoadBalancer struct {
	loadBalancerBase
	index uint64
}

// NewRoundRobinLoadBalancer creates a round-robin balancer over hostSet.
func NewRoundRobinLoadBalancer(hostSet, localHostSet *HostSet, clusterStats *ClusterStats, loader runtime.Loader, random runtime.RandomGenerator) *RoundRobinLoadBalancer {
	return &RoundRobinLoadBalancer{
		loadBalancerBase: loadBalancerBase{
			hostSet: hostSet, localHostSet: localHostSet,
			stats: clusterStats, runtime: loader, random: random,
		},
	}
}

// ChooseHost implements LoadBalancer.
func (lb *RoundRobinLoadBalancer) ChooseHost() *Host {
	hosts := lb.hostsToUse()
	if len(hosts) == 0 {
		return nil
	}
	host := hosts[lb.index%uint64(len(hosts))]
	lb.index++
	return host
}

// RandomLoadBalancer draws uniformly from the filtered hosts.
type RandomLoadBalancer struct {
	loadBalancerBase
}

// NewRandomLoadBalancer creates a random balancer over hostSet.
func NewRandomLoadBalancer(hostSet, localHostSet *HostSet, clusterStats *ClusterStats, loader runtime.Loader, random runtime.RandomGenerator) *RandomLoadBalancer {
	return &RandomLoadBalancer{
		loadBalancerBase: loadBalancerBase{
			hostSet: hostSet, localHostSet: localHostSet,
			stats: clusterStats, runtime: loader, random: random,
		},
	}
}

// ChooseHost implements LoadBalancer.
func (lb *RandomLoadBalancer) ChooseHost() *Host {
	hosts := lb.hostsToUse()
	if len(hosts) == 0 {
		return nil
	}
	return hosts[lb.random.Random()%uint64(len(hosts))]
}

// LeastRequestLoadBalancer is power-of-two-choices over active request
// counts. When host weights are uneven (and weighting is enabled) it
// switches to weighted stickiness: pick a host uniformly and stay on it for
// weight-1 further picks.
type LeastRequestLoadBalancer struct {
	loadBalancerBase
	lastHost *Host
	hitsLeft uint32
}

// NewLeastRequestLoadBalancer creates a least-request balancer over
// hostSet. It subscribes to membership updates so stickiness resets the
// moment the sticky host leaves the set.
func NewLeastRequestLoadBalancer(hostSet, localHostSet *HostSet, clusterStats *ClusterStats, loader runtime.Loader, random runtime.RandomGenerator) *LeastRequestLoadBalancer {
	lb := &LeastRequestLoadBalancer{
		loadBalancerBase: loadBalancerBase{
			hostSet: hostSet, localHostSet: localHostSet,
			stats: clusterStats, runtime: loader, random: random,
		},
	}
	hostSet.AddMemberUpdateCallback(func(_, hostsRemoved []*Host) {
		if lb.lastHost == nil {
			return
		}
		for _, host := range hostsRemoved {
			if host == lb.lastHost {
				lb.hitsLeft = 0
				lb.lastHost = nil
				break
			}
		}
	})
	return lb
}

// ChooseHost implements LoadBalancer.
func (lb *LeastRequestLoadBalancer) ChooseHost() *Host {
	weightImbalanced := lb.stats.MaxHostWeight.Value() > 1
	weightEnabled := lb.runtime.Snapshot().GetInteger(runtimeWeightEnabled, 1) != 0

	if weightImbalanced && lb.hitsLeft > 0 && weightEnabled {
		lb.hitsLeft--
		return lb.lastHost
	}
	// Avoid serving a stale sticky host once weights balance out.
	lb.hitsLeft = 0
	lb.lastHost = nil

	hosts := lb.hostsToUse()
	if len(hosts) == 0 {
		return nil
	}

	if weightImbalanced && weightEnabled {
		lb.lastHost = hosts[lb.random.Random()%uint64(len(hosts))]
		lb.hitsLeft = lb.lastHost.Weight() - 1
		return lb.lastHost
	}

	host1 := hosts[lb.random.Random()%uint64(len(hosts))]
	host2 := hosts[lb.random.Random()%uint64(len(hosts))]
	if host1.Stats().RqActive.Load() < host2.Stats().RqActive.Load() {
		return host1
	}
	return host2
}
