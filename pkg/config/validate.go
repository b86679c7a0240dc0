package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for structural errors.
func Validate(cfg *Config) error {
	if len(cfg.Listeners) == 0 {
		return fmt.Errorf("at least one listener is required")
	}

	clusterNames := make(map[string]bool, len(cfg.Clusters))
	for i, cluster := range cfg.Clusters {
		if cluster.Name == "" {
			return fmt.Errorf("clusters[%d]: name is required", i)
		}
		if clusterNames[cluster.Name] {
			return fmt.Errorf("clusters[%d]: duplicate name %q", i, cluster.Name)
		}
		clusterNames[cluster.Name] = true

		switch cluster.Type {
		case ClusterStatic:
			if len(cluster.Hosts) == 0 {
				return fmt.Errorf("cluster %q: static cluster requires hosts", cluster.Name)
			}
			for _, host := range cluster.Hosts {
				if err := validateHostPort(host); err != nil {
					return fmt.Errorf("cluster %q: %w", cluster.Name, err)
				}
			}
		case ClusterSds:
			if cluster.ServiceName == "" {
				return fmt.Errorf("cluster %q: sds cluster requires service_name", cluster.Name)
			}
			if cluster.DiscoveryAddress == "" {
				return fmt.Errorf("cluster %q: sds cluster requires discovery_address", cluster.Name)
			}
			if err := validateHostPort(cluster.DiscoveryAddress); err != nil {
				return fmt.Errorf("cluster %q: %w", cluster.Name, err)
			}
			if cluster.RefreshDelay <= 0 {
				return fmt.Errorf("cluster %q: refresh_delay must be positive", cluster.Name)
			}
		default:
			return fmt.Errorf("cluster %q: unknown type %q", cluster.Name, cluster.Type)
		}

		switch cluster.LbPolicy {
		case "round_robin", "least_request", "random":
		default:
			return fmt.Errorf("cluster %q: unknown lb_policy %q", cluster.Name, cluster.LbPolicy)
		}
	}

	for i, listener := range cfg.Listeners {
		if listener.Address == "" {
			return fmt.Errorf("listeners[%d]: address is required", i)
		}
		if err := validateHostPort(listener.Address); err != nil {
			return fmt.Errorf("listeners[%d]: %w", i, err)
		}
		if len(listener.Routes) == 0 {
			return fmt.Errorf("listeners[%d]: at least one route is required", i)
		}
		for j, route := range listener.Routes {
			if !strings.HasPrefix(route.Prefix, "/") {
				return fmt.Errorf("listeners[%d].routes[%d]: prefix must start with /", i, j)
			}
			if !clusterNames[route.Cluster] {
				return fmt.Errorf("listeners[%d].routes[%d]: unknown cluster %q", i, j, route.Cluster)
			}
		}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level: unknown level %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format: unknown format %q", cfg.Telemetry.Logging.Format)
	}

	if err := validateHostPort(cfg.Admin.Address); err != nil {
		return fmt.Errorf("admin.address: %w", err)
	}
	return nil
}

func validateHostPort(address string) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return fmt.Errorf("malformed address %q", address)
	}
	return nil
}
