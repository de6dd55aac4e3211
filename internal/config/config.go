// Package config loads process configuration from the environment using
// envconfig, mirroring the original trackserver2 config module's env var
// names (CINET_HOST/PORT, WS_HOST/PORT, DATABASE_URL, JWT_SECRET, ...).
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the ingestion core's full runtime configuration.
type Config struct {
	CinetHost string `envconfig:"CINET_HOST" default:"0.0.0.0"`
	CinetPort int    `envconfig:"CINET_PORT" default:"4509"`

	SubHost string `envconfig:"WS_HOST" default:"0.0.0.0"`
	SubPort int    `envconfig:"WS_PORT" default:"8081"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"data/cinet.db"`

	// JWTSecret is optional: when empty, the subscriber server skips token
	// verification entirely (spec §12 supplemented feature; auth is not in
	// the core wire protocol).
	JWTSecret string `envconfig:"JWT_SECRET"`

	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	Production bool   `envconfig:"PRODUCTION" default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// CinetAddr is the listen address for the ciNet TCP server.
func (c *Config) CinetAddr() string {
	return fmt.Sprintf("%s:%d", c.CinetHost, c.CinetPort)
}

// SubAddr is the listen address for the subscriber websocket server.
func (c *Config) SubAddr() string {
	return fmt.Sprintf("%s:%d", c.SubHost, c.SubPort)
}

// Redacted returns a copy safe to log: JWTSecret is masked.
func (c Config) Redacted() Config {
	if c.JWTSecret != "" {
		c.JWTSecret = "****"
	}
	return c
}
