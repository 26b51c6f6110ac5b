package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.True(t, cfg.Expand())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: America/New_York
expand_recurring: false
basic_auth:
  username: ""
  password: ""
holiday_feeds:
  - id: us
    url: https://example.com/us.ics
    business_id: shop-1
    demand_increase_pct: 20
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.False(t, cfg.Expand())
	assert.Equal(t, defaultRefresh, cfg.RefreshCron)
	assert.Equal(t, defaultMaxOcc, cfg.MaxOccurrencesPerEvent)
	assert.Nil(t, cfg.BasicAuth)
	require.Len(t, cfg.HolidayFeeds, 1)
	assert.Equal(t, 20.0, cfg.HolidayFeeds[0].DemandIncreasePct)
	assert.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	cfg.RefreshCron = "every day"
	cfg.HolidayFeeds = []FeedConfig{
		{ID: "a", URL: "https://example.com/a.ics", BusinessID: "b"},
		{ID: "a"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"Mars/Olympus", "every day", `duplicate id "a"`, "url is required", "business_id is required"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"STORECAL_LISTEN=0.0.0.0:9000\n"+
			"STORECAL_REDIS_URL=redis://cache:6379/0\n"+
			"STORECAL_BASIC_AUTH_USERNAME=admin\n"), 0o600))
	t.Setenv("STORECAL_LISTEN", ":7000")
	t.Setenv("STORECAL_EXPAND_RECURRING", "false")
	t.Setenv("STORECAL_BASIC_AUTH_PASSWORD", "hunter2")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg, envFile, filepath.Join(t.TempDir(), "missing.env")))

	// Process environment wins over the file.
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.False(t, cfg.Expand())
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.Equal(t, "hunter2", cfg.BasicAuth.Password)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(cfg, func(key string) (string, bool) {
		if key == "MAX_OCCURRENCES_PER_EVENT" {
			return "lots", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "MAX_OCCURRENCES_PER_EVENT")
}
