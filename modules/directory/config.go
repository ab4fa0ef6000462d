package directory

import (
	"fmt"
	"net/url"
	"time"
)

// Config defines the configuration for the directory module.
//
// Example YAML configuration:
//
//	directory:
//	  discovery_url: http://controller:5001
//	  ready_timeout: 15s
//	  fallbacks:
//	    controller: http://localhost:5001
//	    routes: http://localhost:8000
//
// Example environment variables:
//
//	PETWALK_DIRECTORY_DISCOVERY_URL=http://controller:5001
//	PETWALK_DIRECTORY_READY_TIMEOUT=15s
type Config struct {
	// DiscoveryURL is the base URL of the controller publishing the
	// service list.
	DiscoveryURL string `yaml:"discovery_url" json:"discovery_url" toml:"discovery_url" env:"DISCOVERY_URL" default:"http://localhost:5001"`

	DiscoveryPath string `yaml:"discovery_path" json:"discovery_path" toml:"discovery_path" env:"DISCOVERY_PATH" default:"/config/services"`

	// RequestTimeout bounds the discovery call itself.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout" env:"REQUEST_TIMEOUT" default:"10s"`

	// ReadyTimeout bounds AwaitReady. Zero waits until the caller's
	// context ends.
	ReadyTimeout time.Duration `yaml:"ready_timeout" json:"ready_timeout" toml:"ready_timeout" env:"READY_TIMEOUT"`

	// ManualLoad disables the background load on module start.
	ManualLoad bool `yaml:"manual_load" json:"manual_load" toml:"manual_load" env:"MANUAL_LOAD"`

	// Fallbacks are base URLs used when a service is missing from the
	// directory after readiness.
	Fallbacks map[string]string `yaml:"fallbacks" json:"fallbacks" toml:"fallbacks"`
}

// DefaultFallbacks match the local development ports of the backend.
func DefaultFallbacks() map[string]string {
	return map[string]string{
		"controller": "http://localhost:5001",
		"routes":     "http://localhost:8000",
	}
}

// Validate implements petwalk.ConfigValidator.
func (c *Config) Validate() error {
	u, err := url.Parse(c.DiscoveryURL)
	if err != nil {
		return fmt.Errorf("discovery_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("discovery_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("discovery_url: missing host")
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout must not be negative")
	}
	return nil
}
