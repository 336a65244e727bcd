// Package config loads nudge settings from defaults, an optional YAML file
// and NUDGE_* environment variables, in increasing order of precedence.
//
// Example nudge.yaml:
//
//	server:
//	  port: 8765
//	leader:
//	  probe_interval: 1s
//	store:
//	  max_components: 100
//	log:
//	  level: debug
//
// Every key can be overridden from the environment with dots replaced by
// underscores, e.g. NUDGE_SERVER_PORT=9000 or NUDGE_LOG_FORMAT=json.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/dreamware/nudge/internal/lease"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "NUDGE"

// Config is the full nudge configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Leader LeaderConfig `mapstructure:"leader"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`            // Loopback interface to bind and dial
	Port           int           `mapstructure:"port"`            // First port tried by a new leader
	PortAttempts   int           `mapstructure:"port_attempts"`   // Successive ports tried on conflict
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // Bound on forwarded calls
}

type LeaderConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"` // Time between liveness checks
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`  // Bound on one probe
	MaxFailures   int           `mapstructure:"max_failures"`   // Failed probes before re-election
	LeasePath     string        `mapstructure:"lease_path"`     // Location of the lease record
}

type StoreConfig struct {
	MaxComponents       int           `mapstructure:"max_components"`
	MaxKeysPerComponent int           `mapstructure:"max_keys_per_component"`
	MaxTotalEntries     int           `mapstructure:"max_total_entries"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	SecretGuard         bool          `mapstructure:"secret_guard"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // zerolog level name
	Format string `mapstructure:"format"` // console or json
}

// New returns a viper instance with every default registered and
// environment overrides enabled. Callers may bind flags onto it before
// calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.port_attempts", 10)
	v.SetDefault("server.request_timeout", "5s")

	v.SetDefault("leader.probe_interval", "2s")
	v.SetDefault("leader.probe_timeout", "1s")
	v.SetDefault("leader.max_failures", 3)
	v.SetDefault("leader.lease_path", lease.DefaultPath())

	v.SetDefault("store.max_components", 500)
	v.SetDefault("store.max_keys_per_component", 200)
	v.SetDefault("store.max_total_entries", 5000)
	v.SetDefault("store.sweep_interval", "30s")
	v.SetDefault("store.secret_guard", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the config file at path, or searches the standard locations
// when path is empty, and decodes v into a validated Config. A missing
// file is only an error when path names it explicitly.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nudge")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func searchPaths() []string {
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "nudge"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nudge"))
	}
	return paths
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.PortAttempts < 1 {
		errs = append(errs, fmt.Errorf("server.port_attempts must be at least 1"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be positive"))
	}
	if c.Leader.ProbeInterval <= 0 || c.Leader.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("leader probe interval and timeout must be positive"))
	}
	if c.Leader.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("leader.max_failures must be at least 1"))
	}
	if c.Leader.LeasePath == "" {
		errs = append(errs, fmt.Errorf("leader.lease_path is required"))
	}
	if c.Store.MaxComponents < 0 || c.Store.MaxKeysPerComponent < 0 || c.Store.MaxTotalEntries < 0 {
		errs = append(errs, fmt.Errorf("store limits must not be negative"))
	}
	if c.Store.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("store.sweep_interval must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}
