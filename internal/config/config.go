// Package config reads the process environment once at startup. The core
// packages never touch the environment themselves; they receive these
// values from the bootstrap.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/dfirlabs/timesketch-mcp/internal/timesketch"
)

// Config is everything the bootstrap passes into the core.
type Config struct {
	Backend     timesketch.Config
	BackendHost string

	MCPHost     string
	MCPPort     int
	Transport   string // "sse" or "stdio"
	MetricsAddr string
}

// Load reads the Timesketch coordinates from the environment. Transport
// settings come from flags and are filled in by the serve command.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("port", 5000)
	v.SetDefault("scheme", "http")
	for key, env := range map[string]string{
		"host":     "TIMESKETCH_HOST",
		"port":     "TIMESKETCH_PORT",
		"scheme":   "TIMESKETCH_SCHEME",
		"user":     "TIMESKETCH_USER",
		"password": "TIMESKETCH_PASSWORD",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	return &Config{
		Backend: timesketch.Config{
			HostURI:  fmt.Sprintf("%s://%s:%d/", v.GetString("scheme"), v.GetString("host"), v.GetInt("port")),
			Username: v.GetString("user"),
			Password: v.GetString("password"),
		},
		BackendHost: v.GetString("host"),
	}, nil
}

// Validate checks that the backend coordinates are usable.
func (c *Config) Validate() error {
	if c.BackendHost == "" {
		return fmt.Errorf("TIMESKETCH_HOST is not set")
	}
	if c.Backend.Username == "" {
		return fmt.Errorf("TIMESKETCH_USER is not set")
	}
	if c.Backend.Password == "" {
		return fmt.Errorf("TIMESKETCH_PASSWORD is not set")
	}
	switch c.Transport {
	case "sse", "stdio":
	default:
		return fmt.Errorf("transport must be sse or stdio, got %q", c.Transport)
	}
	return nil
}
