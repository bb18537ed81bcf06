package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesValues(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		AppVersion:  " 1.2.0 ",
		Observability: config.ObservabilityConfig{
			LogLevel:          "",
			LogFormat:         "Console",
			QueryLogLevel:     "INFO",
			SlowQuery:         time.Second,
			OtelProtocol:      "HTTP",
			OtelSamplingRatio: 4,
		},
	})

	assert.Equal(t, "quoteflow", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "info", cfg.QueryLogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "Local"}.Debug())
	assert.False(t, Config{LogLevel: "warn", Environment: "staging"}.Debug())
}
