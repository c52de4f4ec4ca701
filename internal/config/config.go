// Package config loads and validates client settings from an optional .env
// file, INVENTAR_* environment variables and command-line flags using Viper.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the client reads.
const EnvPrefix = "INVENTAR"

// Keys.
const (
	KeyAPIURL      = "api_url"
	KeyDB          = "db"
	KeyTimeout     = "timeout"
	KeyRefreshSkew = "refresh_skew"
	KeyLogLevel    = "log_level"
	KeyLogFile     = "log_file"
)

// Config holds the client configuration.
type Config struct {
	// APIURL is the root of the REST API, e.g. https://example.org/api/.
	APIURL string `mapstructure:"api_url"`
	// DB is the path of the local SQLite cache.
	DB string `mapstructure:"db"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`
	// RefreshSkew refreshes the access token this long before it expires.
	RefreshSkew time.Duration `mapstructure:"refresh_skew"`
	LogLevel    string        `mapstructure:"log_level"`
	// LogFile receives a copy of every log line when set.
	LogFile string `mapstructure:"log_file"`
}

// New returns a Viper instance with the defaults and the environment wired
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAPIURL, "http://localhost:8000/api/")
	v.SetDefault(KeyDB, "inventar.sqlite3")
	v.SetDefault(KeyTimeout, "30s")
	v.SetDefault(KeyRefreshSkew, "30s")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")

	return v
}

// Load reads envFile (if present) into v, then builds and validates Config.
// A missing file is ignored. The file uses unprefixed keys such as
// API_URL=...; environment variables and bound flags override it.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", envFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: %s must be an http(s) URL, got %q", KeyAPIURL, c.APIURL)
	}
	if c.DB == "" {
		return fmt.Errorf("config: %s must be set", KeyDB)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: %s must be positive", KeyTimeout)
	}
	if c.RefreshSkew < 0 {
		return fmt.Errorf("config: %s must not be negative", KeyRefreshSkew)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel converts a level name such as "debug" or "warn" into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid %s %q", KeyLogLevel, name)
	}
	return l, nil
}
