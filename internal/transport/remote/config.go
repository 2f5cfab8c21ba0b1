package remote

import (
	"errors"
	"time"
)

var (
	// ErrEmptyListenAddress is returned when no listen address is configured
	ErrEmptyListenAddress = errors.New("listen address cannot be empty")
	// ErrMissingSecret is returned when authentication is required without a secret
	ErrMissingSecret = errors.New("auth secret is required when authentication is enabled")
	// ErrEmptyServerAddress is returned when a client has no server to dial
	ErrEmptyServerAddress = errors.New("server address cannot be empty")
)

// Config holds configuration for the bridge server.
type Config struct {
	// ListenAddress is the host:port the gRPC server binds to
	ListenAddress string

	// AuthSecret signs and verifies bearer tokens
	AuthSecret string

	// AuthRequired rejects bridge calls without a valid token
	AuthRequired bool

	// TokenTTL is the lifetime of tokens issued by Login
	TokenTTL time.Duration

	// MaxMessageSize bounds request and reply sizes in bytes
	MaxMessageSize int
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrEmptyListenAddress
	}
	if c.AuthRequired && c.AuthSecret == "" {
		return ErrMissingSecret
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4 * 1024 * 1024 // 4MB
	}
}

// ClientConfig holds configuration for the bridge client.
type ClientConfig struct {
	// ServerAddress is the gRPC target, e.g. "localhost:7447"
	ServerAddress string

	// ClientID identifies the client when logging in
	ClientID string

	// Token is a pre-issued bearer token. Authenticate replaces it.
	Token string

	// Timeout bounds every call except Wait, which is bounded by its own
	// timeout argument
	Timeout time.Duration
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *ClientConfig) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "rcl-client"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks if the configuration is valid
func (c *ClientConfig) Validate() error {
	if c.ServerAddress == "" {
		return ErrEmptyServerAddress
	}
	return nil
}
