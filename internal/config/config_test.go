package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_BuildsHostURI(t *testing.T) {
	t.Setenv("TIMESKETCH_HOST", "timesketch.internal")
	t.Setenv("TIMESKETCH_PORT", "443")
	t.Setenv("TIMESKETCH_SCHEME", "https")
	t.Setenv("TIMESKETCH_USER", "analyst")
	t.Setenv("TIMESKETCH_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://timesketch.internal:443/", cfg.Backend.HostURI)
	assert.Equal(t, "analyst", cfg.Backend.Username)
}

func TestLoad_DefaultPortAndScheme(t *testing.T) {
	t.Setenv("TIMESKETCH_HOST", "localhost")
	t.Setenv("TIMESKETCH_USER", "analyst")
	t.Setenv("TIMESKETCH_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/", cfg.Backend.HostURI)
}

func TestValidate_MissingCredentials(t *testing.T) {
	t.Setenv("TIMESKETCH_HOST", "localhost")
	t.Setenv("TIMESKETCH_USER", "")
	t.Setenv("TIMESKETCH_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	cfg.Transport = "sse"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMESKETCH_USER")
}

func TestValidate_BadTransport(t *testing.T) {
	t.Setenv("TIMESKETCH_HOST", "localhost")
	t.Setenv("TIMESKETCH_USER", "analyst")
	t.Setenv("TIMESKETCH_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	cfg.Transport = "websocket"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}
