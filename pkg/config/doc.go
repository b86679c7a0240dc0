// Package config loads, defaults and validates the proxy's YAML
// configuration.
//
// The loading sequence is LoadConfig -> ApplyDefaults -> Validate;
// LoadConfigWithEnvOverrides then applies JANUS_* environment variables to
// the validated result and validates it again, so the environment always
// wins over the file (the file itself must still pass validation). Configuration covers listeners (address and header
// mutation policy), clusters (static membership or service discovery, load
// balancing policy), the runtime root, access logging, the admin endpoint
// and telemetry.
package config
