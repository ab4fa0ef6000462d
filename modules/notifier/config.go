// Package notifier keeps a push connection to the notifier service open
// while a session token exists, forwarding every server event to the event
// bus as notification.<event>.
package notifier

import "time"

// Config defines the notifier module configuration.
type Config struct {
	// Service is the directory entry of the notifier.
	Service string `yaml:"service" json:"service" toml:"service" env:"SERVICE" default:"notifier"`

	// ConnectTimeout bounds dial plus handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" toml:"connect_timeout" env:"CONNECT_TIMEOUT" default:"5s"`

	// ReconnectDelay is the pause before redialing a dropped connection.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay" toml:"reconnect_delay" env:"RECONNECT_DELAY" default:"2s"`

	// Disabled skips connecting altogether.
	Disabled bool `yaml:"disabled" json:"disabled" toml:"disabled" env:"DISABLED"`
}
