package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "primary", cfg.Storage.Bucket)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.BinaryPath)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.ProbePath)
	assert.Equal(t, "yt-dlp", cfg.Downloader.BinaryPath)
	assert.True(t, cfg.Downloader.Dedup)
	assert.GreaterOrEqual(t, cfg.Worker.Count, 1)
	assert.Zero(t, cfg.Server.WriteTimeout, "SSE connections stay open indefinitely")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CLIPD_SERVER_PORT", "9090")
	t.Setenv("CLIPD_DATABASE_DRIVER", "sqlite")
	t.Setenv("CLIPD_DATABASE_DSN", "clipd.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "clipd.db", cfg.Database.DSN)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
worker:
  count: 4
  progress_interval: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 2*time.Second, cfg.Worker.ProgressInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base(t)
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base(t)
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = base(t)
	cfg.Storage.Bucket = ""
	assert.Error(t, cfg.Validate())

	cfg = base(t)
	cfg.Worker.ProgressInterval = 5 * time.Second
	assert.Error(t, cfg.Validate())

	cfg = base(t)
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}
