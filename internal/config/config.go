package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration parameters
type Config struct {
	SeedURL           string        `mapstructure:"seed_url"`
	Depth             int           `mapstructure:"depth"`
	Workers           int           `mapstructure:"workers"`
	Keywords          []string      `mapstructure:"keywords"`
	OutputPrefix      string        `mapstructure:"output_prefix"`
	DBPath            string        `mapstructure:"db_path"`
	Undirected        bool          `mapstructure:"undirected"`
	KeepExternalLinks bool          `mapstructure:"keep_external_links"`
	ContentSelector   string        `mapstructure:"content_selector"`
	ContentPrefix     string        `mapstructure:"content_prefix"`
	ReservedPrefix    string        `mapstructure:"reserved_prefix"`
	IdleBackoff       time.Duration `mapstructure:"idle_backoff"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	SkipFetchErrors   bool          `mapstructure:"skip_fetch_errors"`
	MetricsPath       string        `mapstructure:"metrics_path"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
}

const (
	// AppName names the per-user configuration directory
	AppName = "link-weaver"

	// EnvPrefix is the prefix of environment variables read by Load
	EnvPrefix = "LINKWEAVER"
)

// ErrMissingSeed is returned when no seed URL is configured
var ErrMissingSeed = errors.New("seed_url is required")

// XDGConfigDir returns the per-user configuration directory.
// On Linux: ~/.config/link-weaver
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultConfigFile returns the config file read when none is given on the
// command line, or "" if it does not exist.
func DefaultConfigFile() string {
	path := filepath.Join(XDGConfigDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("depth", 5)
	v.SetDefault("workers", 4)
	v.SetDefault("content_selector", "#bodyContent")
	v.SetDefault("content_prefix", "/wiki/")
	v.SetDefault("reserved_prefix", "/w")
	v.SetDefault("idle_backoff", 500*time.Millisecond)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("user_agent", "link-weaver/1.0")
}

// Load reads configuration from v (flags, environment and an optional
// config file already attached to it), then applies defaults and validates.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// bindEnv registers every Config key with v so LINKWEAVER_<KEY> is read even
// for keys that have no default and no bound flag
func bindEnv(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// applyDefaults fills unset fields and clamps depth and worker count to 1
func applyDefaults(cfg *Config) {
	cfg.SeedURL = strings.TrimSpace(cfg.SeedURL)

	if cfg.Depth < 1 {
		logrus.Warnf("Depth must be greater than 0 (got %d). Setting it to 1.", cfg.Depth)
		cfg.Depth = 1
	}
	if cfg.Workers < 1 {
		logrus.Warnf("Number of workers must be greater than 0 (got %d). Setting it to 1.", cfg.Workers)
		cfg.Workers = 1
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 500 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	keywords := cfg.Keywords[:0]
	for _, k := range cfg.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	cfg.Keywords = keywords
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.SeedURL == "" {
		return ErrMissingSeed
	}
	u, err := url.Parse(cfg.SeedURL)
	if err != nil {
		return fmt.Errorf("seed_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("seed_url must be an http(s) URL, got %q", cfg.SeedURL)
	}
	if u.Host == "" {
		return fmt.Errorf("seed_url has no host: %q", cfg.SeedURL)
	}
	if cfg.ContentPrefix != "" && !strings.HasPrefix(cfg.ContentPrefix, "/") {
		return fmt.Errorf("content_prefix must start with '/', got %q", cfg.ContentPrefix)
	}
	return nil
}
