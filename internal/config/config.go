// Package config loads the configuration of the rcl-transportd daemon.
//
// The file is YAML:
//
//	listen: ":7447"
//	auth:
//	  secret: "change-me"
//	  token_ttl: 24h
//	  required: true
//	transport:
//	  queue_depth: 10
//	log:
//	  level: info
//	  format: text
//
// Missing values take the defaults applied by SetDefaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/remote"
)

const (
	// DefaultListen is the bridge address used when none is configured
	DefaultListen = ":7447"
	// DefaultTokenTTL is the lifetime of issued bearer tokens
	DefaultTokenTTL = 24 * time.Hour
	// DefaultQueueDepth is the subscription queue depth used when QoS gives none
	DefaultQueueDepth = 10
)

var (
	// ErrMissingSecret is returned when auth is required without a secret
	ErrMissingSecret = errors.New("auth.secret is required when auth.required is true")
	// ErrInvalidQueueDepth is returned for a negative queue depth
	ErrInvalidQueueDepth = errors.New("transport.queue_depth cannot be negative")
	// ErrInvalidLogLevel is returned for an unknown log level
	ErrInvalidLogLevel = errors.New("log.level must be debug, info, warn or error")
	// ErrInvalidLogFormat is returned for an unknown log format
	ErrInvalidLogFormat = errors.New("log.format must be text, json or auto")
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the host:port of the gRPC bridge
	Listen string `yaml:"listen"`

	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// AuthConfig configures bearer token authentication of bridge clients.
type AuthConfig struct {
	// Secret signs tokens. Login is disabled when it is empty.
	Secret string `yaml:"secret"`

	// TokenTTL is the lifetime of issued tokens, e.g. "24h"
	TokenTTL time.Duration `yaml:"token_ttl"`

	// Required rejects bridge calls that carry no valid token
	Required bool `yaml:"required"`
}

// TransportConfig configures the hosted in-process transport.
type TransportConfig struct {
	// QueueDepth is the subscription queue depth used when a subscription
	// does not request one
	QueueDepth int `yaml:"queue_depth"`
}

// LogConfig configures the daemon logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`

	// Format is text, json or auto. Auto writes text to a terminal and
	// JSON otherwise.
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// Load reads and parses the YAML file at path, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromYAML(data)
}

// FromYAML parses a YAML document and applies defaults. The result is not
// validated.
func FromYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	c.SetDefaults()
	return &c, nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Transport.QueueDepth == 0 {
		c.Transport.QueueDepth = DefaultQueueDepth
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.Required && c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	if c.Transport.QueueDepth < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueDepth, c.Transport.QueueDepth)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	return nil
}

// Bridge returns the bridge server configuration.
func (c *Config) Bridge() *remote.Config {
	return &remote.Config{
		ListenAddress: c.Listen,
		AuthSecret:    c.Auth.Secret,
		AuthRequired:  c.Auth.Required,
		TokenTTL:      c.Auth.TokenTTL,
	}
}
