package observability

import (
	"strings"

	"github.com/smallbiznis/upkeep/internal/config"
	"github.com/spf13/viper"
)

const defaultSamplingRatio = 0.1

// Config is the logging and telemetry view of the process environment.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig layers OTEL_* and LOG_* variables over the app config.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("deployment_env", cfg.Environment)
	v.SetDefault("service_version", cfg.AppVersion)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", cfg.OTLPEndpoint)
	v.SetDefault("otel_exporter_otlp_protocol", "grpc")
	v.SetDefault("otel_sampling_ratio", defaultSamplingRatio)

	protocol := v.GetString("otel_exporter_otlp_protocol")
	if traces := strings.TrimSpace(v.GetString("otel_exporter_otlp_traces_protocol")); traces != "" {
		protocol = traces
	}

	ratio := v.GetFloat64("otel_sampling_ratio")
	if ratio < 0 || ratio > 1 {
		ratio = defaultSamplingRatio
	}

	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "upkeep"
	}

	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(v.GetString("deployment_env")),
		Version:              strings.TrimSpace(v.GetString("service_version")),
		LogLevel:             lower(v.GetString("log_level")),
		LogFormat:            lower(v.GetString("log_format")),
		OtelEnabled:          v.GetBool("otel_enabled"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
		OtelExporterProtocol: lower(protocol),
		OtelSamplingRatio:    ratio,
	}
}

// Debug enables stack traces on error logs.
func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
