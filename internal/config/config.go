// Package config loads CLI configuration from a YAML file and environment
// variables.
//
// Precedence, lowest first: built-in defaults, the config file, FTPCLIENT_*
// environment variables. Command-line flags are applied on top by the CLI.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "~/.config/ftpclient/config.yaml"

const envPrefix = "FTPCLIENT_"

// Config holds everything the CLI needs to open and run a session.
type Config struct {
	// Server
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dir      string `yaml:"dir"`

	// Connection
	Timeout           time.Duration `yaml:"timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AutoReconnect     bool          `yaml:"auto_reconnect"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ExplicitTLS       bool          `yaml:"explicit_tls"`
	DisableEPSV       bool          `yaml:"disable_epsv"`

	// Listing
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	ShowHidden   bool          `yaml:"show_hidden"`
	FoldersFirst bool          `yaml:"folders_first"`

	// Transfers. BandwidthLimit is a human size per second such as
	// "512 KiB"; empty means unlimited.
	BandwidthLimit string `yaml:"bandwidth_limit"`

	// Logging and monitoring
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:              ftpclient.DefaultPort,
		User:              "anonymous",
		Timeout:           30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		AutoReconnect:     true,
		ReconnectAttempts: 3,
		ReconnectDelay:    2 * time.Second,
		CacheTTL:          30 * time.Second,
		FoldersFirst:      true,
		LogLevel:          "warn",
		MetricsAddr:       ":9090",
	}
}

// Load reads path (DefaultPath when empty) over the defaults and then
// applies environment overrides. A missing default file is not an error;
// a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}
	if err := cfg.readFile(expanded); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Host = envOr("HOST", c.Host)
	c.Port = envInt("PORT", c.Port, &errs)
	c.User = envOr("USER", c.User)
	c.Password = envOr("PASSWORD", c.Password)
	c.Dir = envOr("DIR", c.Dir)
	c.Timeout = envDuration("TIMEOUT", c.Timeout, &errs)
	c.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", c.HeartbeatInterval, &errs)
	c.AutoReconnect = envBool("AUTO_RECONNECT", c.AutoReconnect, &errs)
	c.ReconnectAttempts = envInt("RECONNECT_ATTEMPTS", c.ReconnectAttempts, &errs)
	c.ReconnectDelay = envDuration("RECONNECT_DELAY", c.ReconnectDelay, &errs)
	c.ExplicitTLS = envBool("EXPLICIT_TLS", c.ExplicitTLS, &errs)
	c.DisableEPSV = envBool("DISABLE_EPSV", c.DisableEPSV, &errs)
	c.CacheTTL = envDuration("CACHE_TTL", c.CacheTTL, &errs)
	c.ShowHidden = envBool("SHOW_HIDDEN", c.ShowHidden, &errs)
	c.FoldersFirst = envBool("FOLDERS_FIRST", c.FoldersFirst, &errs)
	c.BandwidthLimit = envOr("BANDWIDTH_LIMIT", c.BandwidthLimit)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail later, deep inside a
// session.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ReconnectAttempts < 1 {
		return fmt.Errorf("reconnect_attempts must be at least 1, got %d", c.ReconnectAttempts)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", c.HeartbeatInterval)
	}
	if _, err := c.BandwidthBytes(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// BandwidthBytes parses BandwidthLimit into bytes per second; 0 means
// unlimited.
func (c *Config) BandwidthBytes() (int64, error) {
	if strings.TrimSpace(c.BandwidthLimit) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.BandwidthLimit)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth_limit %q: %w", c.BandwidthLimit, err)
	}
	return int64(n), nil
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return l, nil
}

// Params returns the connection parameters.
func (c *Config) Params() ftpclient.Params {
	return ftpclient.Params{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
	}
}

// Options returns the Manager options for this configuration. The logger
// and metrics sink are supplied by the caller.
func (c *Config) Options() ([]ftpclient.Option, error) {
	bps, err := c.BandwidthBytes()
	if err != nil {
		return nil, err
	}
	opts := []ftpclient.Option{
		ftpclient.WithTimeout(c.Timeout),
		ftpclient.WithHeartbeatInterval(c.HeartbeatInterval),
		ftpclient.WithAutoReconnect(c.AutoReconnect),
		ftpclient.WithReconnectAttempts(c.ReconnectAttempts),
		ftpclient.WithReconnectDelay(c.ReconnectDelay),
		ftpclient.WithCacheTTL(c.CacheTTL),
		ftpclient.WithBandwidthLimit(bps),
	}
	if c.ExplicitTLS {
		opts = append(opts, ftpclient.WithExplicitTLS(&tls.Config{ServerName: c.Host}))
	}
	if c.DisableEPSV {
		opts = append(opts, ftpclient.WithDisableEPSV())
	}
	return opts, nil
}

// Save writes c to path as YAML, creating parent directories. The file is
// private to the user since it may hold a password.
func (c *Config) Save(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o600)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return fallback
	}
	return b
}

func envInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return fallback
	}
	return d
}
