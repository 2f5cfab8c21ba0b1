package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultListen, c.Listen)
	assert.Equal(t, DefaultTokenTTL, c.Auth.TokenTTL)
	assert.Equal(t, DefaultQueueDepth, c.Transport.QueueDepth)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.NoError(t, c.Validate())
}

func TestFromYAML(t *testing.T) {
	c, err := FromYAML([]byte(`
listen: "127.0.0.1:9000"
auth:
  secret: s3cret
  token_ttl: 90m
  required: true
transport:
  queue_depth: 32
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "127.0.0.1:9000", c.Listen)
	assert.Equal(t, "s3cret", c.Auth.Secret)
	assert.Equal(t, 90*time.Minute, c.Auth.TokenTTL)
	assert.True(t, c.Auth.Required)
	assert.Equal(t, 32, c.Transport.QueueDepth)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)

	bridge := c.Bridge()
	assert.Equal(t, "127.0.0.1:9000", bridge.ListenAddress)
	assert.Equal(t, "s3cret", bridge.AuthSecret)
	assert.True(t, bridge.AuthRequired)
	assert.Equal(t, 90*time.Minute, bridge.TokenTTL)
	assert.NoError(t, bridge.Validate())
}

func TestFromYAML_Partial(t *testing.T) {
	c, err := FromYAML([]byte("log:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, DefaultListen, c.Listen)
	assert.Equal(t, DefaultQueueDepth, c.Transport.QueueDepth)
}

func TestFromYAML_Malformed(t *testing.T) {
	_, err := FromYAML([]byte("listen: [unterminated"))
	assert.Error(t, err)

	_, err = FromYAML([]byte("auth:\n  token_ttl: forever\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"required without secret", func(c *Config) { c.Auth.Required = true }, ErrMissingSecret},
		{"negative queue depth", func(c *Config) { c.Transport.QueueDepth = -1 }, ErrInvalidQueueDepth},
		{"unknown level", func(c *Config) { c.Log.Level = "verbose" }, ErrInvalidLogLevel},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":8000\"\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8000", c.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
