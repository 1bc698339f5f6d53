// Package config is the Viper-backed configuration and logger construction
// for sensorhostd: defaults, config file discovery, environment overrides,
// and CLI flag binding all live here so main stays a thin bootstrap.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the server's top-level settings, unmarshaled from Viper once
// at startup. Individual components still read through the *viper.Viper
// for anything not promoted here.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DB      string `mapstructure:"db"`
	DataDir string `mapstructure:"data_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Flags is the set of CLI flag values main.go parses before calling Load.
// A zero value for any field means "not set on the command line"; Load
// only overrides the corresponding Viper key when the value is non-zero.
type Flags struct {
	ConfigPath string
	DB         string
	Host       string
	DataDir    string
}

// Load builds a *viper.Viper with defaults, an optional config file, the
// SENSORHOST_-prefixed environment, and CLI flag overrides applied last
// (flags win), then unmarshals it into a Config.
func Load(f Flags) (*viper.Viper, *Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("db", "postgres://localhost/sensorhost?sslmode=disable")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	if f.ConfigPath != "" {
		v.SetConfigFile(f.ConfigPath)
	} else {
		v.SetConfigName("sensorhost")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/sensorhost")
	}

	v.SetEnvPrefix("SENSORHOST")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if f.DB != "" {
		v.Set("db", f.DB)
	}
	if f.Host != "" {
		v.Set("host", f.Host)
	}
	if f.DataDir != "" {
		v.Set("data_dir", f.DataDir)
	}
	// SENSORHOST_DATA_DIR takes effect automatically through AutomaticEnv
	// unless the flag above already overrode it.

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return v, cfg, nil
}

// defaultDataDir returns the OS-specific application data root per the
// Device Registry's directory scheme: the macOS Application Support
// directory, $HOME/.sensorhost on Linux, and a .sensorhost directory
// beside the executable on Windows.
func defaultDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ".sensorhost"
		}
		return filepath.Join(home, "Library", "Application Support", "sensorhost")
	case "windows":
		exe, err := os.Executable()
		if err != nil {
			return ".sensorhost"
		}
		return filepath.Join(filepath.Dir(exe), ".sensorhost")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return ".sensorhost"
		}
		return filepath.Join(home, ".sensorhost")
	}
}
