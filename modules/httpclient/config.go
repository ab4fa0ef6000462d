// Package httpclient provides the shared HTTP client used for every backend
// call: a pooled transport, request IDs, per-call bearer tokens, a global
// response interceptor chain with the 401 handler, verbose logging and
// Prometheus metrics.
package httpclient

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidMaxBodyLogSize is returned for a negative max_body_log_size.
	ErrInvalidMaxBodyLogSize = errors.New("max_body_log_size must not be negative")

	// ErrRedirectPathRequired is returned when unauthorized_redirect is empty.
	ErrRedirectPathRequired = errors.New("unauthorized_redirect must be set")
)

// Config defines the configuration for the HTTP client module.
//
// Example YAML configuration:
//
//	httpclient:
//	  request_timeout: 30s
//	  verbose: true
//	  verbose_options:
//	    log_headers: true
//	    max_body_log_size: 2048
//
// Example environment variables:
//
//	PETWALK_HTTPCLIENT_REQUEST_TIMEOUT=60s
//	PETWALK_HTTPCLIENT_VERBOSE=true
type Config struct {
	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all hosts.
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns" toml:"max_idle_conns" env:"MAX_IDLE_CONNS" default:"100"`

	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host" toml:"max_idle_conns_per_host" env:"MAX_IDLE_CONNS_PER_HOST" default:"10"`

	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout" toml:"idle_conn_timeout" env:"IDLE_CONN_TIMEOUT" default:"90s"`

	// RequestTimeout is the maximum time for a request to complete,
	// including reading the response body.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout" env:"REQUEST_TIMEOUT" default:"30s"`

	TLSTimeout time.Duration `yaml:"tls_timeout" json:"tls_timeout" toml:"tls_timeout" env:"TLS_TIMEOUT" default:"10s"`

	DisableCompression bool `yaml:"disable_compression" json:"disable_compression" toml:"disable_compression" env:"DISABLE_COMPRESSION"`

	DisableKeepAlives bool `yaml:"disable_keep_alives" json:"disable_keep_alives" toml:"disable_keep_alives" env:"DISABLE_KEEP_ALIVES"`

	// Verbose enables request/response logging.
	Verbose bool `yaml:"verbose" json:"verbose" toml:"verbose" env:"VERBOSE"`

	VerboseOptions VerboseOptions `yaml:"verbose_options" json:"verbose_options" toml:"verbose_options"`

	// LoginPath marks requests whose 401 is a failed login rather than an
	// expired session.
	LoginPath string `yaml:"login_path" json:"login_path" toml:"login_path" env:"LOGIN_PATH" default:"/user/login"`

	// UnauthorizedRedirect is where the user is sent after a 401.
	UnauthorizedRedirect string `yaml:"unauthorized_redirect" json:"unauthorized_redirect" toml:"unauthorized_redirect" env:"UNAUTHORIZED_REDIRECT" default:"/about"`

	// MetricsNamespace prefixes the Prometheus metric names.
	MetricsNamespace string `yaml:"metrics_namespace" json:"metrics_namespace" toml:"metrics_namespace" env:"METRICS_NAMESPACE" default:"petwalk"`
}

// VerboseOptions tunes verbose logging.
type VerboseOptions struct {
	LogHeaders bool `yaml:"log_headers" json:"log_headers" toml:"log_headers" env:"LOG_HEADERS"`

	LogBody bool `yaml:"log_body" json:"log_body" toml:"log_body" env:"LOG_BODY"`

	// MaxBodyLogSize truncates dumps longer than this. Zero disables
	// truncation.
	MaxBodyLogSize int `yaml:"max_body_log_size" json:"max_body_log_size" toml:"max_body_log_size" env:"MAX_BODY_LOG_SIZE" default:"4096"`
}

// Validate implements petwalk.ConfigValidator.
func (c *Config) Validate() error {
	if c.VerboseOptions.MaxBodyLogSize < 0 {
		return fmt.Errorf("config validation error: %w", ErrInvalidMaxBodyLogSize)
	}
	if c.UnauthorizedRedirect == "" {
		return fmt.Errorf("config validation error: %w", ErrRedirectPathRequired)
	}
	return nil
}
