package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for a chainstage invocation.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `yaml:"service_version,omitempty" json:"service_version,omitempty"`

	// Environment labels traces (e.g. the target network).
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format specifies the log format (console, json).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `yaml:"enable_caller,omitempty" json:"enable_caller,omitempty"`

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty"`

	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `yaml:"export_timeout,omitempty" json:"export_timeout,omitempty"`

	// Headers are additional headers for OTLP exporter.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// MetricsConfig configures metrics collection. An invocation is short-lived,
// so metrics are exported once at exit rather than scraped.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Namespace is the metrics namespace prefix.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// TextfilePath, when set, receives the metrics in the Prometheus text
	// format (for the node_exporter textfile collector).
	TextfilePath string `yaml:"textfile_path,omitempty" json:"textfile_path,omitempty"`

	// PushgatewayURL, when set, receives the metrics via push.
	PushgatewayURL string `yaml:"pushgateway_url,omitempty" json:"pushgateway_url,omitempty"`

	// PushJob is the Pushgateway job name.
	PushJob string `yaml:"push_job,omitempty" json:"push_job,omitempty"`

	// Buckets are the latency histogram buckets in seconds.
	Buckets []float64 `yaml:"buckets,omitempty" json:"buckets,omitempty"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "chainstage",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Headers:       make(map[string]string),
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "chainstage",
			PushJob:   "chainstage",
			Buckets: []float64{
				0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
			},
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate logging format
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	// Validate tracing exporter
	validExporters := map[string]bool{
		"otlp": true, "stdout": true, "none": true,
	}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	// Validate sampling rate
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.PushgatewayURL != "" && c.Metrics.PushJob == "" {
		return fmt.Errorf("pushgateway export requires a job name")
	}

	return nil
}
