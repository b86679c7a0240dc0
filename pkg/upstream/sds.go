package upstream

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"

	"meridian-hq/janus/pkg/event"
	"meridian-hq/janus/pkg/runtime"
	"meridian-hq/janus/pkg/stats"
)

// sdsRequestTimeout bounds one discovery fetch.
const sdsRequestTimeout = time.Second

// ActiveRequest is an in-flight discovery fetch that can be cancelled on
// shutdown.
type ActiveRequest interface {
	Cancel()
}

// AsyncClient is the discovery-transport collaborator. Send issues a GET
// for path against the discovery cluster and invokes cb exactly once with
// the response status and body, or a transport error. The callback must run
// on the cluster's dispatcher.
type AsyncClient interface {
	Send(path string, timeout time.Duration, cb func(status int, body []byte, err error)) ActiveRequest
}

// HealthChecker is the active-health-checking collaborator hook the SDS
// cluster consumes.
type HealthChecker interface {
	// AddHostCheckCompleteCallback registers cb to run after every host
	// check completes.
	AddHostCheckCompleteCallback(cb func(host *Host, healthy bool))
}

// SdsConfig configures a discovery-fed cluster.
type SdsConfig struct {
	// ServiceName is the registration to poll:
	// /v1/registration/<ServiceName>.
	ServiceName string

	// RefreshDelay is the base poll interval; each round adds a uniform
	// jitter in [0, RefreshDelay).
	RefreshDelay time.Duration

	// LocalZone partitions discovered hosts for zone-aware routing.
	LocalZone string
}

// sdsHostEntry mirrors one entry of the discovery response.
type sdsHostEntry struct {
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
	Tags      struct {
		Canary bool   `json:"canary"`
		Weight uint32 `json:"load_balancing_weight"`
		AZ     string `json:"az"`
	} `json:"tags"`
}

type sdsResponse struct {
	Hosts []sdsHostEntry `json:"hosts"`
}

// SdsCluster keeps its membership in sync with a discovery service by
// polling on a jittered interval. Discovery failures are absorbed locally:
// the membership is left as-is and the next refresh is scheduled.
type SdsCluster struct {
	Cluster

	config SdsConfig
	client AsyncClient
	random runtime.RandomGenerator
	logger *slog.Logger

	refreshTimer  *event.Timer
	activeRequest ActiveRequest

	healthChecker       HealthChecker
	initializeCallback  func()
	pendingHealthChecks int
}

// NewSdsCluster creates a discovery-fed cluster on dispatcher. Start begins
// polling.
func NewSdsCluster(name string, config SdsConfig, client AsyncClient, dispatcher *event.Dispatcher, store *stats.Store, random runtime.RandomGenerator, logger *slog.Logger) *SdsCluster {
	c := &SdsCluster{
		Cluster: *NewCluster(name, config.LocalZone, store, logger),
		config:  config,
		client:  client,
		random:  random,
		logger:  logger.With("cluster", name),
	}
	c.refreshTimer = dispatcher.CreateTimer(c.refreshHosts)
	return c
}

// SetHealthChecker installs the health-checking hook. Must be called before
// Start; newly discovered hosts then stay unhealthy until their first check
// passes.
func (c *SdsCluster) SetHealthChecker(checker HealthChecker) {
	c.healthChecker = checker
}

// SetInitializedCallback arranges cb to run once the first membership is
// usable: after the first successful refresh, or after the first round of
// health checks when a checker is installed.
func (c *SdsCluster) SetInitializedCallback(cb func()) {
	c.initializeCallback = cb
}

// Start issues the first refresh.
func (c *SdsCluster) Start() {
	c.refreshHosts()
}

// Shutdown cancels the in-flight fetch and the refresh timer.
func (c *SdsCluster) Shutdown() {
	if c.activeRequest != nil {
		c.activeRequest.Cancel()
		c.activeRequest = nil
	}
	c.refreshTimer.DisableTimer()
}

func (c *SdsCluster) refreshHosts() {
	c.logger.Debug("starting sds refresh")
	c.stats.UpdateAttempt.Inc()

	path := "/v1/registration/" + c.config.ServiceName
	c.activeRequest = c.client.Send(path, sdsRequestTimeout, c.onResponse)
}

func (c *SdsCluster) onResponse(status int, body []byte, err error) {
	if err != nil || status != 200 {
		c.onFailure(status, err)
		return
	}
	if err := c.parseResponse(body); err != nil {
		c.onFailure(status, err)
		return
	}
	c.stats.UpdateSuccess.Inc()
	c.requestComplete()
}

func (c *SdsCluster) onFailure(status int, err error) {
	c.logger.Debug("sds refresh failure", "status", status, "err", err)
	c.stats.UpdateFailure.Inc()
	c.requestComplete()
}

func (c *SdsCluster) parseResponse(body []byte) error {
	var response sdsResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("upstream: malformed sds response: %w", err)
	}

	newHosts := make([]*Host, 0, len(response.Hosts))
	for _, entry := range response.Hosts {
		weight := entry.Tags.Weight
		if weight == 0 {
			weight = 1
		}
		address := fmt.Sprintf("%s:%d", entry.IPAddress, entry.Port)
		newHosts = append(newHosts, NewHost(address, entry.Tags.Canary, weight, entry.Tags.AZ))
	}

	final, added, removed, changed := reconcileHosts(newHosts, c.Hosts(), c.healthChecker != nil)
	if changed {
		c.logger.Debug("sds hosts changed", "hosts", len(final))
		c.installHosts(final, added, removed)

		if c.initializeCallback != nil && c.healthChecker != nil && c.pendingHealthChecks == 0 {
			c.pendingHealthChecks = len(final)
			c.healthChecker.AddHostCheckCompleteCallback(func(*Host, bool) {
				if c.pendingHealthChecks > 0 {
					c.pendingHealthChecks--
					if c.pendingHealthChecks == 0 && c.initializeCallback != nil {
						cb := c.initializeCallback
						c.initializeCallback = nil
						cb()
					}
				}
			})
		}
	}
	return nil
}

func (c *SdsCluster) requestComplete() {
	c.logger.Debug("sds refresh complete")
	// If initialization was not tied to a health-check round, fire it now.
	if c.initializeCallback != nil && c.pendingHealthChecks == 0 {
		cb := c.initializeCallback
		c.initializeCallback = nil
		cb()
	}

	c.activeRequest = nil

	// Jitter the next refresh over [delay, 2*delay) to avoid thundering
	// herds against the discovery service.
	delay := c.config.RefreshDelay
	if delay > 0 {
		delay += time.Duration(c.random.Random() % uint64(c.config.RefreshDelay))
	}
	c.refreshTimer.EnableTimer(delay)
}
