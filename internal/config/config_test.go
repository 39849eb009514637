package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "permitd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
portal:
  base_url: https://portal.example.gov
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.gov", cfg.Portal.BaseURL)
	assert.Equal(t, "searchArgs.submittedDtFrom", cfg.Portal.BeginDateField)
	assert.Equal(t, "pager.offset", cfg.Portal.OffsetParam)
	assert.Equal(t, 25, cfg.Portal.MaxPages)
	assert.Equal(t, 20*time.Second, cfg.PortalTimeout())

	assert.True(t, cfg.Browser.Enabled)
	assert.Equal(t, "permits", cfg.DB.Table)

	assert.Equal(t, 50, cfg.Worker.BatchLimit)
	assert.Equal(t, 6*time.Hour, cfg.RetryCooldown())
	assert.InDelta(t, 0.3, cfg.Worker.WeightWellbore, 1e-9)
	assert.InDelta(t, 0.3, cfg.Worker.WeightFieldName, 1e-9)
	assert.InDelta(t, 0.2, cfg.Worker.WeightAcres, 1e-9)
	assert.InDelta(t, 0.2, cfg.Worker.WeightWellCount, 1e-9)
	assert.InDelta(t, 0.6, cfg.Worker.OKThreshold, 1e-9)
	assert.Equal(t, 2, cfg.Worker.OKMinFields)

	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
portal:
  base_url: https://portal.example.gov
  max_pages: 5
worker:
  retry_cooldown_hours: 12
  ok_threshold: 0.8
limiter:
  min_interval_ms: 100
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Portal.MaxPages)
	assert.Equal(t, 12*time.Hour, cfg.RetryCooldown())
	assert.InDelta(t, 0.8, cfg.Worker.OKThreshold, 1e-9)
	assert.Equal(t, 100, cfg.Limiter.MinIntervalMs)
}

func TestLoadMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
db:
  dsn: postgres://localhost/permits
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadInvalidThreshold(t *testing.T) {
	path := writeConfig(t, `
portal:
  base_url: https://portal.example.gov
worker:
  ok_threshold: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PERMITS_PORTAL_BASE_URL", "https://env.example.gov")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.gov", cfg.Portal.BaseURL)
}
