// Package config loads the bgrun configuration. Values come from defaults, then
// an optional YAML file, then the environment; command-line flags are applied
// on top by the caller.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// SocketEnv overrides the socket path.
	SocketEnv = "BGRUN_SOCKET"
	// ConfigEnv overrides the configuration file path.
	ConfigEnv = "BGRUN_CONFIG"
)

// Config is the bgrun configuration.
type Config struct {
	// SocketPath defaults to $HOME/.bgrun.sock.
	SocketPath string `yaml:"socket"`
	// JournalPath is the daemon's journal file. Empty disables it.
	JournalPath string `yaml:"journal"`
	// StatusAddr is the address of the HTTP status server. Empty disables it.
	StatusAddr string `yaml:"status_addr"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StopGrace       time.Duration `yaml:"stop_grace"`
}

// Default returns the default configuration.
func Default() Config {
	var cfg Config

	if home, err := os.UserHomeDir(); err == nil {
		cfg.SocketPath = filepath.Join(home, ".bgrun.sock")
	}

	return cfg
}

// DefaultPath returns the path of the configuration file: $BGRUN_CONFIG if set,
// otherwise bgrun/config.yaml in the user's configuration directory.
func DefaultPath() string {
	if path := os.Getenv(ConfigEnv); path != "" {
		return path
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(configDir, "bgrun", "config.yaml")
}

// Load loads the configuration from the file at path and the environment. A
// missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if socket := os.Getenv(SocketEnv); socket != "" {
		cfg.SocketPath = socket
	}

	return cfg, nil
}

func (cfg *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read config")
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}

	return nil
}
