package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("USAGEREPORTER_STORAGE_PATH", filepath.Join(dir, "data", "usagereporter.bolt"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Storage.Type)
	assert.Equal(t, 5, cfg.Report.TopN)
	assert.Equal(t, 30, cfg.Report.TargetMinutes)
	assert.True(t, cfg.Usage.Enabled)

	hour, minute, err := cfg.DefaultSendTime()
	require.NoError(t, err)
	assert.Equal(t, 21, hour)
	assert.Equal(t, 0, minute)

	_, err = os.Stat(filepath.Join(dir, "data"))
	assert.NoError(t, err, "storage directory should be created")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  type: redis
  redis:
    host: redis.internal
report:
  top_n: 3
  target_minutes: 60
  timezone: Asia/Tokyo
  default_send_time: "07:45"
logging:
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "redis.internal", cfg.Storage.Redis.Host)
	assert.Equal(t, 3, cfg.Report.TopN)
	assert.Equal(t, 60, cfg.Report.TargetMinutes)
	assert.Equal(t, "text", cfg.Logging.Format)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())

	hour, minute, err := cfg.DefaultSendTime()
	require.NoError(t, err)
	assert.Equal(t, 7, hour)
	assert.Equal(t, 45, minute)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero top n", "report:\n  top_n: 0\n"},
		{"bad timezone", "report:\n  timezone: Mars/Olympus\n"},
		{"bad send time", "report:\n  default_send_time: \"25:61\"\n"},
		{"bad storage type", "storage:\n  type: sqlite\n"},
		{"bad duration", "webhook:\n  timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			t.Setenv("USAGEREPORTER_STORAGE_PATH", filepath.Join(dir, "usagereporter.bolt"))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
