package config

import "time"

// Config is the root configuration structure for the proxy.
type Config struct {
	// Listeners are the downstream-facing listeners. At least one is
	// required to serve traffic.
	Listeners []ListenerConfig `yaml:"listeners"`

	// Clusters are the upstream clusters listeners route to.
	Clusters []ClusterConfig `yaml:"clusters"`

	// Runtime configures the runtime key/value tree.
	Runtime RuntimeConfig `yaml:"runtime"`

	// AccessLog configures request logging.
	AccessLog AccessLogConfig `yaml:"access_log"`

	// Admin configures the admin endpoint serving metrics and health.
	Admin AdminConfig `yaml:"admin"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ListenerConfig describes one downstream listener and the header policy
// of its HTTP connection manager.
type ListenerConfig struct {
	// Address is the "host:port" to listen on.
	Address string `yaml:"address"`

	// UseRemoteAddress marks this listener as the first proxy in the trust
	// boundary: x-forwarded-for is created/appended from the immediate
	// peer rather than trusted.
	// Default: false
	UseRemoteAddress bool `yaml:"use_remote_address"`

	// LocalAddress replaces loopback peers in x-forwarded-for.
	// Default: "127.0.0.1"
	LocalAddress string `yaml:"local_address"`

	// UserAgent, when set, names this deployment in the proxy's
	// downstream-service-cluster header and fills a missing user-agent.
	UserAgent string `yaml:"user_agent"`

	// GenerateRequestID enables x-request-id creation.
	// Default: true
	GenerateRequestID *bool `yaml:"generate_request_id"`

	// InternalOnlyHeaders are stripped from external requests in addition
	// to the proxy's own control headers.
	InternalOnlyHeaders []string `yaml:"internal_only_headers"`

	// ResponseHeadersToRemove are stripped from every response.
	ResponseHeadersToRemove []string `yaml:"response_headers_to_remove"`

	// ResponseHeadersToAdd are appended to every response, in order.
	ResponseHeadersToAdd []HeaderValueConfig `yaml:"response_headers_to_add"`

	// Routes map path prefixes to clusters; the longest matching prefix
	// wins.
	Routes []RouteConfig `yaml:"routes"`
}

// HeaderValueConfig is one configured header name/value pair.
type HeaderValueConfig struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// RouteConfig maps a path prefix onto a cluster.
type RouteConfig struct {
	// Prefix is matched against :path. "/" matches everything.
	Prefix string `yaml:"prefix"`

	// Cluster names the target cluster.
	Cluster string `yaml:"cluster"`
}

// ClusterType selects how a cluster learns its membership.
type ClusterType string

const (
	// ClusterStatic uses the fixed host list from the configuration.
	ClusterStatic ClusterType = "static"

	// ClusterSds polls a discovery service for membership.
	ClusterSds ClusterType = "sds"
)

// ClusterConfig describes one upstream cluster.
type ClusterConfig struct {
	// Name identifies the cluster to routes and in stat names.
	Name string `yaml:"name"`

	// Type is "static" or "sds".
	// Default: "static"
	Type ClusterType `yaml:"type"`

	// LbPolicy is "round_robin", "least_request" or "random".
	// Default: "round_robin"
	LbPolicy string `yaml:"lb_policy"`

	// Hosts is the static membership ("host:port" entries). Required for
	// static clusters.
	Hosts []string `yaml:"hosts"`

	// LocalZone tags the zone this proxy runs in for zone-aware routing.
	LocalZone string `yaml:"local_zone"`

	// ServiceName is the discovery registration to poll. Required for sds
	// clusters.
	ServiceName string `yaml:"service_name"`

	// DiscoveryAddress is the "host:port" of the discovery service.
	// Required for sds clusters.
	DiscoveryAddress string `yaml:"discovery_address"`

	// RefreshDelay is the base discovery poll interval; each round adds
	// jitter in [0, RefreshDelay).
	// Default: 30s
	RefreshDelay time.Duration `yaml:"refresh_delay"`
}

// RuntimeConfig configures the runtime key/value oracle.
type RuntimeConfig struct {
	// Root is the directory tree holding runtime values. Empty disables
	// the disk loader; all lookups then serve defaults.
	Root string `yaml:"root"`
}

// AccessLogConfig configures request logging.
type AccessLogConfig struct {
	// Path receives formatted log lines: a file path, or "stdout".
	// Empty disables the line sink.
	Path string `yaml:"path"`

	// SQLitePath, when set, additionally stores entries in a SQLite
	// database for querying and retention.
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionSchedule is a cron expression for pruning the SQLite store.
	// Default: "0 3 * * *" (daily at 3 AM) when SQLitePath is set.
	RetentionSchedule string `yaml:"retention_schedule"`

	// RetentionMaxAge is how long SQLite entries are kept.
	// Default: 168h (7 days)
	RetentionMaxAge time.Duration `yaml:"retention_max_age"`
}

// AdminConfig configures the admin endpoint.
type AdminConfig struct {
	// Address is the "host:port" of the admin HTTP server.
	// Default: "127.0.0.1:9901"
	Address string `yaml:"address"`
}

// TelemetryConfig configures observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures the stats store.
type MetricsConfig struct {
	// Namespace prefixes every exported metric.
	// Default: "janus"
	Namespace string `yaml:"namespace"`
}

// GenerateRequestIDEnabled resolves the tri-state flag with its default.
func (l *ListenerConfig) GenerateRequestIDEnabled() bool {
	if l.GenerateRequestID == nil {
		return true
	}
	return *l.GenerateRequestID
}
