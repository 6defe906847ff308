package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "pipeline", cfg.Name)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 3, cfg.Retry.Limit)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialDelay)
}

func TestNewConfigWithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithName("order-pipeline"),
		WithLogLevel("debug"),
		WithLogFormat("text"),
		WithTelemetryEndpoint("collector:4317"),
		WithRetryDefaults(5, 50*time.Millisecond, time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "order-pipeline", cfg.Name)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 5, cfg.Retry.Limit)
	assert.NotNil(t, cfg.Logger())
}

func TestNewConfigRejectsBadOptions(t *testing.T) {
	_, err := NewConfig(WithLogLevel("verbose"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewConfig(WithName(""))
	require.Error(t, err)

	_, err = NewConfig(WithLogFormat("xml"))
	require.Error(t, err)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("PIPELINE_NAME", "env-pipeline")
	t.Setenv("PIPELINE_LOG_LEVEL", "WARN")
	t.Setenv("PIPELINE_OTEL_ENDPOINT", "otel:4317")
	t.Setenv("PIPELINE_RETRY_LIMIT", "7")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "env-pipeline", cfg.Name)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "otel:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 7, cfg.Retry.Limit)
}

func TestOptionsOverrideEnvironment(t *testing.T) {
	t.Setenv("PIPELINE_NAME", "env-pipeline")

	cfg, err := NewConfig(WithName("option-pipeline"))
	require.NoError(t, err)
	assert.Equal(t, "option-pipeline", cfg.Name)
}

func TestConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	content := `
name: file-pipeline
logging:
  level: error
  format: text
retry:
  limit: 9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewConfig(WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, "file-pipeline", cfg.Name)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 9, cfg.Retry.Limit)
}

func TestConfigFileUnsupportedFormat(t *testing.T) {
	_, err := NewConfig(WithConfigFile("pipeline.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewConfig(WithRetryDefaults(3, 10*time.Second, time.Second))
	require.Error(t, err, "initial delay above max must be rejected")

	_, err = NewConfig(WithRetryDefaults(-1, 0, 0))
	require.Error(t, err)
}

func TestInvalidEnvRetryLimit(t *testing.T) {
	t.Setenv("PIPELINE_RETRY_LIMIT", "many")

	_, err := NewConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}
