package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
)

// Config is the slice of application configuration the log, trace and
// metric providers read.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel      string
	LogFormat     string
	QueryLogLevel string
	SlowQuery     time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "quoteflow"
	}
	obs := cfg.Observability

	out := Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(obs.LogLevel)),
		LogFormat:            strings.ToLower(strings.TrimSpace(obs.LogFormat)),
		QueryLogLevel:        strings.ToLower(strings.TrimSpace(obs.QueryLogLevel)),
		SlowQuery:            obs.SlowQuery,
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(obs.OtelEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(obs.OtelProtocol)),
		OtelSamplingRatio:    obs.OtelSamplingRatio,
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 0.1
	}
	return out
}

// Debug is true for debug logging and for non-production environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
