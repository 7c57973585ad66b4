package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, 10*time.Minute, cfg.IdleLease)
	assert.Equal(t, 256, cfg.QueueSize)
}

func TestLoad_ParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
idle_lease: 5m
queue_size: 64
servers:
  go:
    command: gopls
    args: ["serve"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.IdleLease)
	assert.Equal(t, 64, cfg.QueueSize)
	require.Contains(t, cfg.Servers, "go")
	assert.Equal(t, "gopls", cfg.Servers["go"].Command)
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("LSP_BROKER_LISTEN_ADDR", ":9999")
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen_addr: ":9000"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
}

func TestLoad_ExpandsEnvVarsInServerArgs(t *testing.T) {
	t.Setenv("WORKSPACE_ROOT", "/work/proj")
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  go:
    command: gopls
    args: ["--root=${WORKSPACE_ROOT}"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"--root=/work/proj"}, cfg.Servers["go"].Args)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/broker.yaml")
	require.Error(t, err)
}
