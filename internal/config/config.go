// Package config loads per-install configuration for the sync service.
//
// Settings come from a YAML config file (~/.zotepad/config.yaml by
// default), ZOTEPAD_* environment variables, and built-in defaults, in
// that order of precedence. The peer pairing record is kept separately
// in pairing.toml (see pairing.go).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultPort is the LAN port the sync server binds.
	DefaultPort = 54577

	// DefaultToken is the development fallback used when no shared
	// secret is configured. Real installs must set their own.
	DefaultToken = "zotepad-dev-token"
)

// Config holds the per-install settings the sync engine needs.
type Config struct {
	// Port the sync protocol server listens on.
	Port int `mapstructure:"port" yaml:"port"`

	// Token is the shared secret peers must present as a bearer token.
	Token string `mapstructure:"token" yaml:"token"`

	// DatabasePath is the SQLite file holding the replicated tables.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// LogFile, when set, routes logs to a size-capped rotating file
	// instead of stderr.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// LogMaxSizeMB caps the rotating log file size in megabytes.
	LogMaxSizeMB int `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`

	// DataDir is the directory holding the database, pairing record,
	// and logs. Derived, not read from the file.
	DataDir string `mapstructure:"-" yaml:"-"`
}

// DefaultDataDir returns ~/.zotepad, falling back to the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zotepad"
	}
	return filepath.Join(home, ".zotepad")
}

// Load reads configuration from the given file, or from the default
// search path when cfgFile is empty. A missing config file is not an
// error; defaults and environment variables still apply.
func Load(cfgFile string) (*Config, error) {
	dataDir := DefaultDataDir()

	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("token", DefaultToken)
	v.SetDefault("database_path", filepath.Join(dataDir, "app.db"))
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		dataDir = filepath.Dir(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
	}

	v.SetEnvPrefix("ZOTEPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.DataDir = dataDir

	if cfg.Token == "" {
		cfg.Token = DefaultToken
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	return &cfg, nil
}
