package websocket

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{}.Normalize()
	assert.Equal(t, defaultReadBufferSize, cfg.ReadBufferSize)
	assert.Equal(t, int64(defaultMaxFrameSize), cfg.MaxFrameSize)
	assert.Equal(t, defaultCloseTimeout, cfg.CloseTimeout)
	assert.Zero(t, cfg.AutoPingInterval, "auto-ping stays disabled unless explicitly configured")
}

func TestConfigNormalizePreservesExplicitValues(t *testing.T) {
	cfg := Config{
		ReadBufferSize:   8192,
		MaxFrameSize:     2048,
		AutoPingInterval: 10 * time.Second,
		CloseTimeout:     2 * time.Second,
	}.Normalize()

	assert.Equal(t, 8192, cfg.ReadBufferSize)
	assert.Equal(t, int64(2048), cfg.MaxFrameSize)
	assert.Equal(t, 10*time.Second, cfg.AutoPingInterval)
	assert.Equal(t, 2*time.Second, cfg.CloseTimeout)
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
max_frame_size: 1048576
max_message_size: 4194304
read_buffer_size: 8192
auto_ping_interval: 15s
close_timeout: 3s
validate_utf8: true
`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), cfg.MaxFrameSize)
	assert.Equal(t, int64(4194304), cfg.MaxMessageSize)
	assert.Equal(t, 8192, cfg.ReadBufferSize)
	assert.Equal(t, 15*time.Second, cfg.AutoPingInterval)
	assert.Equal(t, 3*time.Second, cfg.CloseTimeout)
	assert.True(t, cfg.ValidateUTF8)
}

func TestParseConfigRejectsInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("not: valid: yaml: ["))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("read_buffer_size: 2048\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.ReadBufferSize)
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	_, err := LoadConfigFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
