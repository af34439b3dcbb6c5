// ABOUTME: Process configuration loaded once at startup from kes.toml merged with KES_* environment variables.
// ABOUTME: Defaults mirror the documented options; invalid values are rejected before anything else starts.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "kes.toml"

// EnvPrefix namespaces environment overrides, e.g. KES_PORT=8080.
const EnvPrefix = "KES"

var (
	ErrInvalidLogFormat = errors.New("log_format must be one of json, pretty, compact")
	ErrInvalidPort      = errors.New("port must be between 1 and 65535")
	ErrInvalidWorkers   = errors.New("workers must be at least 1")
)

// LogFormat selects the log encoder.
type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatPretty  LogFormat = "pretty"
	LogFormatCompact LogFormat = "compact"
)

// Valid reports whether f is one of the known formats.
func (f LogFormat) Valid() bool {
	switch f {
	case LogFormatJSON, LogFormatPretty, LogFormatCompact:
		return true
	}
	return false
}

// Config is the read-only process configuration. Empty template paths mean
// "use the embedded default".
type Config struct {
	Port             int       `mapstructure:"port" yaml:"port"`
	Workers          int       `mapstructure:"workers" yaml:"workers"`
	LogFormat        LogFormat `mapstructure:"log_format" yaml:"log_format"`
	LogLevel         string    `mapstructure:"log_level" yaml:"log_level"`
	PostsDir         string    `mapstructure:"posts_dir" yaml:"posts_dir"`
	AssetsDir        string    `mapstructure:"assets_dir" yaml:"assets_dir"`
	HomeTemplate     string    `mapstructure:"home_template" yaml:"home_template,omitempty"`
	PostTemplate     string    `mapstructure:"post_template" yaml:"post_template,omitempty"`
	NotFoundTemplate string    `mapstructure:"not_found_template" yaml:"not_found_template,omitempty"`
	MetricsPort      int       `mapstructure:"metrics_port" yaml:"metrics_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("workers", 4)
	v.SetDefault("log_format", string(LogFormatJSON))
	v.SetDefault("log_level", "error")
	v.SetDefault("posts_dir", "posts")
	v.SetDefault("assets_dir", "assets")
	// Registered so AutomaticEnv can see them; viper ignores env for unknown keys.
	v.SetDefault("home_template", "")
	v.SetDefault("post_template", "")
	v.SetDefault("not_found_template", "")
	v.SetDefault("metrics_port", 0)
}

// Load reads the TOML file at path, overlays KES_* environment variables and
// validates the result. A missing or malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.LogFormat = LogFormat(strings.ToLower(string(cfg.LogFormat)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the option ranges that the server depends on.
func (c *Config) Validate() error {
	if !c.LogFormat.Valid() {
		return fmt.Errorf("%w: got %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("%w: metrics_port got %d", ErrInvalidPort, c.MetricsPort)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}
	return nil
}

// Addr is the loopback listen address for the public site.
func (c *Config) Addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Port))
}

// MetricsAddr is the loopback listen address for /metrics, or "" when disabled.
func (c *Config) MetricsAddr() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.MetricsPort))
}
