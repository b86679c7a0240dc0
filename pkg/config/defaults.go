package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultAdminAddress      = "127.0.0.1:9901"
	DefaultLocalAddress      = "127.0.0.1"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultMetricsNamespace  = "janus"
	DefaultRefreshDelay      = 30 * time.Second
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultRetentionMaxAge   = 7 * 24 * time.Hour
)

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	for i := range cfg.Listeners {
		listener := &cfg.Listeners[i]
		if listener.LocalAddress == "" {
			listener.LocalAddress = DefaultLocalAddress
		}
	}

	for i := range cfg.Clusters {
		cluster := &cfg.Clusters[i]
		if cluster.Type == "" {
			cluster.Type = ClusterStatic
		}
		if cluster.LbPolicy == "" {
			cluster.LbPolicy = "round_robin"
		}
		if cluster.RefreshDelay == 0 {
			cluster.RefreshDelay = DefaultRefreshDelay
		}
	}

	if cfg.AccessLog.SQLitePath != "" {
		if cfg.AccessLog.RetentionSchedule == "" {
			cfg.AccessLog.RetentionSchedule = DefaultRetentionSchedule
		}
		if cfg.AccessLog.RetentionMaxAge == 0 {
			cfg.AccessLog.RetentionMaxAge = DefaultRetentionMaxAge
		}
	}

	if cfg.Admin.Address == "" {
		cfg.Admin.Address = DefaultAdminAddress
	}
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}
