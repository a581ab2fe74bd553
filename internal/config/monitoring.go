// Monitoring configuration - logging and metrics settings.
//
// DESIGN: Logging (zerolog) is for operators; metrics (Prometheus) count
// pipeline outcomes per provider, quirk and meter.
package config

import "fmt"

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	MetricsEnabled bool   `yaml:"metrics_enabled"` // Expose Prometheus metrics
	MetricsPath    string `yaml:"metrics_path"`    // Defaults to /metrics
}

// Validate checks the monitoring settings.
func (m MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (must be json or console)", m.LogFormat)
	}
	return nil
}

// MetricsRoute returns the HTTP path metrics are served on.
func (m MonitoringConfig) MetricsRoute() string {
	if m.MetricsPath == "" {
		return "/metrics"
	}
	return m.MetricsPath
}
