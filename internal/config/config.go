// Package config loads client and development-server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gradcompass/interview/internal/storage"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL = "http://localhost:8000"
	configFileName   = "config.yaml"
	accessKeyName    = "access.key"
)

// Config is the client configuration.
type Config struct {
	// ServerURL is the base URL of the interview REST API. The realtime
	// endpoint is derived from it.
	ServerURL string
	// Token is the bearer token for authenticated calls.
	Token string
	// AgentType is the interviewer persona requested for new sessions.
	AgentType string

	// Home is the directory where the client stores local state.
	Home string
	// AccessKey is the path to the saved token file.
	AccessKey string
	// ConfigFile is the YAML file consulted by Load, whether or not it exists.
	ConfigFile string

	// Debug enables verbose logging.
	Debug bool
	// LogLevel overrides the level implied by Debug.
	LogLevel string

	HTTPTimeout       time.Duration
	HandshakeTimeout  time.Duration
	GracePeriod       time.Duration
	KeepaliveInterval time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// fileConfig mirrors the optional YAML file. Pointer fields distinguish
// "absent" from zero.
type fileConfig struct {
	ServerURL         *string        `yaml:"server_url"`
	AgentType         *string        `yaml:"agent_type"`
	LogLevel          *string        `yaml:"log_level"`
	Debug             *bool          `yaml:"debug"`
	HTTPTimeout       *time.Duration `yaml:"http_timeout"`
	HandshakeTimeout  *time.Duration `yaml:"handshake_timeout"`
	GracePeriod       *time.Duration `yaml:"grace_period"`
	KeepaliveInterval *time.Duration `yaml:"keepalive_interval"`
	MaxRetries        *int           `yaml:"max_retries"`
	RetryBaseDelay    *time.Duration `yaml:"retry_base_delay"`
}

// Defaults returns the built-in configuration rooted at home.
func Defaults(home string) *Config {
	return &Config{
		ServerURL:         defaultServerURL,
		AgentType:         "visa_assistant",
		Home:              home,
		AccessKey:         filepath.Join(home, accessKeyName),
		ConfigFile:        filepath.Join(home, configFileName),
		LogLevel:          "info",
		HTTPTimeout:       15 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		GracePeriod:       1500 * time.Millisecond,
		KeepaliveInterval: 4 * time.Minute,
		MaxRetries:        3,
		RetryBaseDelay:    time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file in the
// client home, then the environment.
func Load() (*Config, error) {
	home := os.Getenv("GRADCOMPASS_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".gradcompass")
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create client home: %w", err)
	}

	cfg := Defaults(home)
	if err := cfg.applyFile(cfg.ConfigFile); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		tok, ok, err := storage.LoadAccessToken(cfg.AccessKey)
		if err != nil {
			return nil, err
		}
		if ok {
			cfg.Token = tok
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	setString(&c.ServerURL, fc.ServerURL)
	setString(&c.AgentType, fc.AgentType)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	setDuration(&c.HTTPTimeout, fc.HTTPTimeout)
	setDuration(&c.HandshakeTimeout, fc.HandshakeTimeout)
	setDuration(&c.GracePeriod, fc.GracePeriod)
	setDuration(&c.KeepaliveInterval, fc.KeepaliveInterval)
	setDuration(&c.RetryBaseDelay, fc.RetryBaseDelay)
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GRADCOMPASS_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("GRADCOMPASS_TOKEN"); v != "" {
		c.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("GRADCOMPASS_AGENT_TYPE"); v != "" {
		c.AgentType = v
	}
	if v := os.Getenv("GRADCOMPASS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenvFirst("GRADCOMPASS_DEBUG", "DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GRADCOMPASS_DEBUG %q: %w", v, err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate checks the tunables for values the client cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server url %q must start with http:// or https://", c.ServerURL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"http_timeout":       c.HTTPTimeout,
		"handshake_timeout":  c.HandshakeTimeout,
		"retry_base_delay":   c.RetryBaseDelay,
		"keepalive_interval": c.KeepaliveInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative")
	}
	return nil
}

// SaveToken persists token to the access key file and adopts it.
func (c *Config) SaveToken(token string) error {
	if err := storage.SaveAccessToken(c.AccessKey, token); err != nil {
		return err
	}
	c.Token = strings.TrimSpace(token)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = strings.TrimSpace(*v)
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}
