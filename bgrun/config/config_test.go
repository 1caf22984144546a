package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("HOME", "/home/test")
		t.Setenv(SocketEnv, "")

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "/home/test/.bgrun.sock", cfg.SocketPath)
		assert.Empty(t, cfg.JournalPath)
		assert.Empty(t, cfg.StatusAddr)
	})

	t.Run("file", func(t *testing.T) {
		t.Setenv(SocketEnv, "")

		path := filepath.Join(t.TempDir(), "config.yaml")
		err := os.WriteFile(path, []byte(
			"socket: /run/bgrun.sock\n"+
				"journal: /var/log/bgrun.json\n"+
				"status_addr: 127.0.0.1:9191\n"+
				"stop_grace: 3s\n"+
				"read_timeout: 1m\n"), 0600)
		require.NoError(t, err)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/run/bgrun.sock", cfg.SocketPath)
		assert.Equal(t, "/var/log/bgrun.json", cfg.JournalPath)
		assert.Equal(t, "127.0.0.1:9191", cfg.StatusAddr)
		assert.Equal(t, 3*time.Second, cfg.StopGrace)
		assert.Equal(t, time.Minute, cfg.ReadTimeout)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("socket: /run/bgrun.sock\n"), 0600))

		t.Setenv(SocketEnv, "/tmp/env.sock")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/env.sock", cfg.SocketPath)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("socket: [\n"), 0600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(ConfigEnv, "/etc/bgrun.yaml")
	assert.Equal(t, "/etc/bgrun.yaml", DefaultPath())
}
