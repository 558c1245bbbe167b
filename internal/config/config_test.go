package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Setenv("FFMPEG_PATH", "")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.TCPPort)
	assert.Equal(t, 9001, cfg.UDPPort)
	assert.Equal(t, 3<<20, cfg.Hub.BacklogThreshold)
	assert.Equal(t, 10*time.Second, cfg.Relay.Freshness)
	assert.Equal(t, 15*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Relay.SweepInterval)
	assert.Equal(t, "knowledge", cfg.Recorder.ContentRoot)
	assert.Equal(t, 12, cfg.Recorder.FPS)
	assert.Equal(t, 80, cfg.Recorder.JPEGQuality)
	assert.Equal(t, 1280, cfg.Recorder.Width)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Storage.Type)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tcp_port: 7000\nudp_port: 7500\nrecorder:\n  fps: 24\n"), 0o644))
	t.Setenv("MEET_HUB_POLICY", "kick")
	t.Setenv("FFMPEG_PATH", "/opt/ff/bin")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.TCPPort)
	assert.Equal(t, 7500, cfg.UDPPort)
	assert.Equal(t, 24, cfg.Recorder.FPS)
	assert.Equal(t, "kick", cfg.Hub.Policy)
	assert.Equal(t, "/opt/ff/bin", cfg.Recorder.FFmpegPath)
}

func TestUDPPortDerivedFromTCP(t *testing.T) {
	t.Setenv("MEET_TCP_PORT", "6000")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 6001, cfg.UDPPort)
}
